// Copyright (c) MeshFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 MeshFlow 摄取流水线的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 scanner、mesh、store、
pipeline 与 api 提供统一的数据契约，避免循环依赖。

# 核心类型

  - ItemRecord: 单件服装条目（标识、结构标志、纹理、类别、状态）
  - Analysis: 转换后网格的几何/材质特征，数值字段可为空
  - Status: OK / FAIL: <原因> / SKIPPED: <原因> 三类终态
  - Error / ErrorKind: 带分类的错误，仅 SETUP_ERROR 会中止批次
*/
package types
