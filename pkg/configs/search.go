package configs

import "github.com/spf13/viper"

// SearchConfig 搜索索引配置，每个模板一个索引.
type SearchConfig struct {
	DataDir  string `mapstructure:"data_dir"`
	InMemory bool   `mapstructure:"in_memory"`
	MaxLimit int    `mapstructure:"max_limit" rule:"min=1"` // 单次查询返回上限
}

func (c *SearchConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("search.data_dir", "data/index")
	v.SetDefault("search.in_memory", false)
	v.SetDefault("search.max_limit", 200)
}

// GeoConfig 邮编目录配置.
type GeoConfig struct {
	ZipcodeFile string `mapstructure:"zipcode_file"` // CSV: zipcode,latitude,longitude,city
	CacheTTL    int    `mapstructure:"cache_ttl"`    // 聚合结果缓存（秒）
}

func (c *GeoConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("geo.zipcode_file", "")
	v.SetDefault("geo.cache_ttl", 600)
}
