// Package config 负责加载与校验 veemflowd 的启动配置。
// 配置来自 YAML 文件，秘密字段（Veem 令牌、OpenAI Key、DSN）
// 支持环境变量覆盖，便于容器化部署。
package config
