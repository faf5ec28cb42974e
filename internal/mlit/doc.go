// Package mlit 封装对 MLIT 不動産情報ライブラリ API 的访问：
// 统一的 Fetch 入口负责缓存查找、带退避的重试、按响应格式写入对应缓存层以及调用统计。
package mlit
