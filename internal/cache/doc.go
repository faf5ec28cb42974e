// Package cache 提供 fetch 客户端依赖的两级缓存：
//
//   - MemoryCache：容量受限的内存 LRU，条目带绝对过期时间，存放 JSON 响应；
//   - FileCache：以请求签名的 SHA-256 摘要命名的磁盘文件缓存，存放 GeoJSON/MVT 等二进制负载。
//
// 所有 TTL 计算只读取注入的 Clock，测试可用 ManualClock 精确推进时间。
// 两级缓存都只在进程内有效，FileCache 的索引不会持久化，重启后磁盘上的旧文件
// 只会在下次写入同名文件或显式清理时被回收。
package cache
