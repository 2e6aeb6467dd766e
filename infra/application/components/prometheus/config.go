package prometheus

// Config 指标导出配置；指标使用独立监听端口。
type Config struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Address   string `yaml:"address" json:"address"` // ":9090"
	Path      string `yaml:"path" json:"path"`
	Namespace string `yaml:"namespace" json:"namespace"`
	Subsystem string `yaml:"subsystem" json:"subsystem"`
	// 指针区分未配置与显式 false，默认开启
	CollectGoMetrics *bool `yaml:"collect_go_metrics" json:"collect_go_metrics"`
	CollectProcess   *bool `yaml:"collect_process" json:"collect_process"`
}
