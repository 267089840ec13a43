package rkvcommon

import (
	"encoding/json"
	"io/ioutil"
	"runtime"

	log "github.com/sirupsen/logrus"
)

// ServerConf is the on-disk JSON configuration for a rkv-server process.
type ServerConf struct {
	StoreId    int    `json:"store_id"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	DBPath     string `json:"db_dir"`
	ChunkCount int    `json:"chunk_count"`

	Repl    ReplConf    `json:"repl"`
	Log     LogConf     `json:"log"`
	Admin   AdminConf   `json:"admin"`
	Metrics MetricsConf `json:"metrics"`
}

type ReplConf struct {
	SyncFromHost string `json:"sync_from_host"`
	SyncFromPort int    `json:"sync_from_port"`
	SyncFromId   int    `json:"sync_from_id"`
	ListenPort   int    `json:"listen_port"`
	BackupDir    string `json:"backup_dir"`
}

type LogConf struct {
	Level string `json:"level"`
	Dir   string `json:"dir"`
}

type AdminConf struct {
	Addr string `json:"addr"`
}

// MetricsConf configures the dual metrics pipeline. PromAddr is the
// host:port promhttp listens on; a blank GraphiteAddr disables the
// rcrowley/go-metrics Graphite reporter entirely.
type MetricsConf struct {
	PromAddr     string `json:"prom_addr"`
	GraphiteAddr string `json:"graphite_addr"`
}

func MakeDefaultConfig() ServerConf {
	dataDir := "/data/rkv/data"
	backupDir := "/data/rkv/backup"
	if runtime.GOOS != "linux" {
		dataDir = "./data/rkv/data"
		backupDir = "./data/rkv/backup"
	}
	return ServerConf{
		Host:       "127.0.0.1",
		Port:       6399,
		DBPath:     dataDir,
		ChunkCount: 1024,
		Repl: ReplConf{
			ListenPort: 6400,
			BackupDir:  backupDir,
		},
		Log: LogConf{
			Level: "info",
		},
		Admin: AdminConf{
			Addr: "127.0.0.1:6410",
		},
		Metrics: MetricsConf{
			PromAddr: "127.0.0.1:6420",
		},
	}
}

func ParseServerConf(confPath string) ServerConf {
	conf := MakeDefaultConfig()
	if confPath == "" {
		return conf
	}
	confBytes, err := ioutil.ReadFile(confPath)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	if err := json.Unmarshal(confBytes, &conf); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}
	return conf
}
