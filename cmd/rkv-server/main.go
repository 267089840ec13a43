package main

import (
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/kvreplica/rkv/internal/admin"
	"github.com/kvreplica/rkv/internal/command"
	"github.com/kvreplica/rkv/internal/metrics"
	"github.com/kvreplica/rkv/internal/netw"
	"github.com/kvreplica/rkv/internal/replica"
	"github.com/kvreplica/rkv/internal/replprimary"
	"github.com/kvreplica/rkv/internal/segment"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
	"github.com/kvreplica/rkv/pkg/store"
)

// replBinlogRingCapacity bounds how many committed-transaction batches a
// primary keeps buffered per store before the oldest are dropped.
const replBinlogRingCapacity = 4096

func main() {
	var confPath string
	flag.StringVar(&confPath, "c", "", "config file path")
	flag.Parse()

	conf := rkvcommon.ParseServerConf(confPath)

	logger, err := rkvcommon.InitLogger(conf.Log.Level, "rkv-server")
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	st, err := store.OpenLevelStore(conf.StoreId, conf.DBPath, conf.Repl.BackupDir)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	seg := segment.NewSingleStoreManager(conf.ChunkCount, st)
	command.Init()

	replMgr := replica.NewManager(logger)
	replMgr.AddStore(st, conf.Repl.SyncFromHost, conf.Repl.SyncFromPort, conf.Repl.SyncFromId)

	primSrv := replprimary.NewServer(logger)
	primSrv.AddStore(st, replBinlogRingCapacity)
	go func() {
		addr := fmt.Sprintf("%s:%d", conf.Host, conf.Repl.ListenPort)
		if err := primSrv.Serve(addr); err != nil {
			logger.Fatalf("replication primary listener: %v", err)
		}
	}()

	if _, err := admin.Serve("RkvAdmin", conf.Admin.Addr, replMgr); err != nil {
		logger.Fatalf("start admin RPC server: %v", err)
	}

	if conf.Metrics.PromAddr != "" {
		go func() {
			if err := metrics.ServeHTTP(conf.Metrics.PromAddr); err != nil {
				logger.Warnf("metrics http server stopped: %v", err)
			}
		}()
	}
	if err := metrics.StartGraphiteReporter(conf.Metrics.GraphiteAddr, 10*time.Second); err != nil {
		logger.Warnf("graphite reporter not started: %v", err)
	}

	addr := fmt.Sprintf("%s:%d", conf.Host, conf.Port)
	srv := netw.NewServer(addr, seg, logger)
	logger.Infof("rkv-server %d listening on %s", conf.StoreId, addr)
	if err := srv.Serve(); err != nil {
		logger.Fatalf("command server: %v", err)
	}
}
