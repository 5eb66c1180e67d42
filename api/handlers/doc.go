// Copyright (c) MeshFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 MeshFlow 检索 API 的请求处理器实现。

# 概述

handlers 包实现 meshflow serve 暴露的 HTTP 端点：GLB 下载、条目元数据
查询、条目列表以及健康检查。所有 Handler 均遵循标准 net/http 接口，
路由使用 Go 1.22 的方法 + 路径模式注册。

# 核心类型

  - AssetHandler: GET /api/glb/{item_id}、/api/metadata/{item_id}、
    /api/metadata、/api/items
  - HealthHandler: /health（存活）与 /ready（ping 两个存储）
  - Response: 统一 JSON 响应结构（success + data + error + timestamp）
  - ErrorInfo: 结构化错误信息，code 取自 types.ErrorKind
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码与字节数

# 错误映射

StatusForKind 把 types.ErrorKind 映射为 HTTP 状态码：NOT_FOUND → 404，
INVALID_REQUEST → 400，RATE_LIMITED → 429，存储不可用 → 503。
*/
package handlers
