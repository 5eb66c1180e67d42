// Copyright 2026 MeshFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 MeshFlow 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试提供统一的辅助能力，避免各包重复实现
相似的测试基础设施。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，自动注册 Cleanup 防止泄漏
  - 断言工具: AssertEventuallyTrue 轮询等待异步条件
  - 文件系统: ListFiles 列出输出目录中的全部文件

# 子包

  - testutil/mocks: MockBucket（内存 blob 存储），支持错误注入与调用计数
  - testutil/fixtures: 在临时目录中生成 <category>/<folder>/ 结构的扫描数据集，
    包括立方体/平面 OBJ、MTL 与 PNG 贴图

# 使用示例

	root := t.TempDir()
	fixtures.WriteGarment(t, root, "dresses", "dressA", fixtures.Textured())
	bucket := mocks.NewMockBucket()
*/
package testutil
