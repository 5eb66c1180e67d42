// 版权所有 2024 MeshFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理检索 API 与 metrics 端口的 HTTP 服务器生命周期。

# 核心类型

  - Manager：封装 http.Server 与 net.Listener，提供 Start、Run、
    Shutdown 以及异步错误通道 Errors。
  - Config：监听地址、读写超时、空闲超时、最大请求头与优雅关闭超时。

Run 会阻塞到 ctx 结束或服务异常，之后在 ShutdownTimeout 内排空请求，
适合与 errgroup 一起同时托管多个端口。
*/
package server
