// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖检索 API、
摄取流水线与数据库三个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离。
批处理是短生命周期进程，结束时可通过 WriteTextfile 导出为
node_exporter textfile 格式。

# 核心类型

  - Collector：指标收集器，nil Collector 的记录方法为空操作。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 流水线指标：按 category/outcome 的条目计数、convert/analyze/upload
    阶段耗时、GLB 大小分布、类别配额占用、blob 操作计数、运行次数与耗时。
  - 数据库指标：活跃/空闲连接数 Gauge、查询耗时 Histogram。
*/
package metrics
