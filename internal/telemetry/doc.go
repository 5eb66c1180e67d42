// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 MeshFlow 的流水线提供集中配置的 TracerProvider 和 MeterProvider。
// 指标可以通过 OTLP 推送，也可以经 Prometheus exporter 挂到 Registry。
// 遥测关闭时使用 noop 实现，不连接任何外部服务。
package telemetry
