package wal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
)

// 自己定義常用的權限常量
const (
	// rw-r--r-- (擁有者讀寫，其他人唯讀)
	FileModeReadOnly fs.FileMode = 0644

	// rw------- (只有擁有者可讀寫) - 帳本資料預設使用
	FileModePrivate fs.FileMode = 0600
)

// WAL 以 JSON Lines 格式追加寫入的 Write-Ahead Log
type WAL struct {
	file *os.File
	mu   sync.Mutex
	// noSync: 測試用，略過 fsync
	noSync bool
}

// Option 定義 WAL 的配置選項函數
type Option func(*WAL)

// WithoutSync 每次寫入後不呼叫 fsync (僅供測試或可接受遺失的環境)
func WithoutSync() Option {
	return func(w *WAL) { w.noSync = true }
}

// NewWAL 開啟或建立一個 WAL 檔案
// O_RDWR讀寫模式
// O_APPEND 每次寫入時自動跳到文件末尾
// O_CREATE 如果文件不存在則建立
func NewWAL(path string, opts ...Option) (*WAL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, FileModePrivate)
	if err != nil {
		return nil, fmt.Errorf("open wal %s: %w", path, err)
	}
	w := &WAL{file: file}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Write 寫入一筆資料並刷入硬碟
// 整筆資料先序列化完成再一次寫入，避免半筆資料
func (w *WAL) Write(v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode wal record: %w", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		return err
	}
	if w.noSync {
		return nil
	}
	return w.file.Sync()
}

// Sync 強制刷入硬碟
func (w *WAL) Sync() error {
	return w.file.Sync()
}

// Close 關閉檔案
func (w *WAL) Close() error {
	return w.file.Close()
}

// ReadAll 從頭讀取所有資料
// callback 一次收到一筆 JSON，避免一次將所有資料載入記憶體
// 檔尾若有寫到一半的資料 (crash)，會被截斷並視為不存在
func (w *WAL) ReadAll(callback func(jsonRaw []byte) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// 確保從頭讀取
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	decoder := json.NewDecoder(w.file)
	var goodOffset int64
	for {
		var raw json.RawMessage
		err := decoder.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return w.truncateLocked(goodOffset)
		}
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) && w.onlyTailLeft(goodOffset) {
			return w.truncateLocked(goodOffset)
		}
		if err != nil {
			return fmt.Errorf("decode wal at offset %d: %w", goodOffset, err)
		}
		goodOffset = decoder.InputOffset()
		if err := callback(raw); err != nil {
			return err
		}
	}
}

// onlyTailLeft 判斷 offset 之後是否只剩最後一行 (沒有換行結尾的殘缺資料)
func (w *WAL) onlyTailLeft(offset int64) bool {
	info, err := w.file.Stat()
	if err != nil {
		return false
	}
	rest := make([]byte, info.Size()-offset)
	if _, err := w.file.ReadAt(rest, offset); err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	rest = bytes.TrimLeft(rest, "\n")
	return !bytes.Contains(rest, []byte{'\n'})
}

func (w *WAL) truncateLocked(offset int64) error {
	if err := w.file.Truncate(offset); err != nil {
		return fmt.Errorf("truncate torn wal tail: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	if offset == 0 {
		return nil
	}
	// InputOffset 停在上一筆的 '}'，補回換行
	_, err := w.file.Write([]byte{'\n'})
	return err
}
