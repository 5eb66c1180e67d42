// Package config 提供 MeshFlow 的配置管理功能。
//
// 支持从 .env、YAML 文件和环境变量（前缀 MESHFLOW）加载配置，
// 并提供批处理与检索服务两种运行方式的校验。
package config
