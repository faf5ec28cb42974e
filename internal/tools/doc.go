// Package tools 聚合面向 LLM 的 MLIT 数据集工具，并提供统一的注册入口。
//
// 每个工具只依赖 Fetcher 接口提供的 Fetch 契约：
//   1. 在 Invoke 中解码并校验参数，非法参数返回 ErrInvalidArguments；
//   2. 通过 Fetch 获取数据，cacheHit 直接取自 FetchResult.FromCache；
//   3. 返回可 JSON 序列化的结果，由调用方决定传输格式。
package tools
