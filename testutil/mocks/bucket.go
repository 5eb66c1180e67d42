// =============================================================================
// 🪣 MockBucket - Blob 存储模拟实现
// =============================================================================
// 内存中的 store.Bucket，支持错误注入与调用计数
//
// 使用方法:
//
//	bucket := mocks.NewMockBucket()
//	blobs := store.NewBlobStore(bucket, zap.NewNop())
//	bucket.WithUploadError(errors.New("disk full"))
// =============================================================================
package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/meshflow/store"
)

// =============================================================================
// 🎯 MockBucket 结构
// =============================================================================

// MockBucket 是 store.Bucket 的内存实现
type MockBucket struct {
	mu sync.RWMutex

	files map[string]store.BlobFile
	data  map[string][]byte
	seq   int
	clock time.Time

	// 错误注入
	uploadErr error
	findErr   error
	deleteErr error
	dropErr   error
	pingErr   error

	// 调用记录
	uploadCalls int
	deleteCalls int
	dropCalls   int
}

// =============================================================================
// 🔧 构造函数和 Builder 方法
// =============================================================================

// NewMockBucket 创建新的 MockBucket
func NewMockBucket() *MockBucket {
	return &MockBucket{
		files: make(map[string]store.BlobFile),
		data:  make(map[string][]byte),
		clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// WithUploadError 设置上传错误
func (m *MockBucket) WithUploadError(err error) *MockBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploadErr = err
	return m
}

// WithFindError 设置查询错误
func (m *MockBucket) WithFindError(err error) *MockBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findErr = err
	return m
}

// WithDeleteError 设置删除错误
func (m *MockBucket) WithDeleteError(err error) *MockBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
	return m
}

// WithDropError 设置清空错误
func (m *MockBucket) WithDropError(err error) *MockBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropErr = err
	return m
}

// WithPingError 设置连接检查错误
func (m *MockBucket) WithPingError(err error) *MockBucket {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// =============================================================================
// 🎯 store.Bucket 实现
// =============================================================================

// Upload 写入文件，上传时间单调递增
func (m *MockBucket) Upload(ctx context.Context, filename string, r io.Reader, meta store.BlobMetadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.uploadCalls++
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.seq++
	m.clock = m.clock.Add(time.Second)
	id := fmt.Sprintf("blob-%06d", m.seq)
	m.files[id] = store.BlobFile{
		ID:         id,
		Filename:   filename,
		Length:     int64(len(payload)),
		UploadDate: m.clock,
		Metadata:   meta,
	}
	m.data[id] = payload
	return id, nil
}

// Find 返回按 id 排序的匹配文件
func (m *MockBucket) Find(ctx context.Context, filter store.BlobFilter) ([]store.BlobFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.findErr != nil {
		return nil, m.findErr
	}
	var out []store.BlobFile
	for _, f := range m.files {
		if filter.Matches(f) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete 删除文件
func (m *MockBucket) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deleteCalls++
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.files[id]; !ok {
		return fmt.Errorf("file %s not found", id)
	}
	delete(m.files, id)
	delete(m.data, id)
	return nil
}

// Download 写出文件内容
func (m *MockBucket) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	m.mu.RLock()
	payload, ok := m.data[id]
	m.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("file %s not found", id)
	}
	return io.Copy(w, bytes.NewReader(payload))
}

// Drop 清空全部文件
func (m *MockBucket) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dropCalls++
	if m.dropErr != nil {
		return m.dropErr
	}
	m.files = make(map[string]store.BlobFile)
	m.data = make(map[string][]byte)
	return nil
}

// Ping 返回注入的错误
func (m *MockBucket) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingErr
}

// =============================================================================
// 🔍 测试辅助方法
// =============================================================================

// Files 返回全部文件（按 id 排序）
func (m *MockBucket) Files() []store.BlobFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.BlobFile, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Content 返回文件内容
func (m *MockBucket) Content(id string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]byte(nil), m.data[id]...)
}

// UploadCalls 返回上传调用次数
func (m *MockBucket) UploadCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.uploadCalls
}

// DeleteCalls 返回删除调用次数
func (m *MockBucket) DeleteCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.deleteCalls
}

// DropCalls 返回清空调用次数
func (m *MockBucket) DropCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dropCalls
}
