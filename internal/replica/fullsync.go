package replica

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kvreplica/rkv/internal/metrics"
	"github.com/kvreplica/rkv/internal/netw"
	"github.com/kvreplica/rkv/pkg/rkvcommon"
)

const (
	initialReadTimeout = 3 * time.Second
	lineWriteTimeout   = 1 * time.Second
	lineReadTimeout    = 1 * time.Second
)

// fullSync runs the replica side of the file-level snapshot transfer
// protocol for storeId: stop+clear the local store, negotiate a file
// manifest with the primary, receive every file into backupDir, then
// restart the store from the staged backup. A failed Stop returns before
// the rollback guard is armed, leaving meta unchanged; any later early
// exit resets meta to CONNECT via the deferred rollback guard.
func (m *Manager) fullSync(storeId int) (err error) {
	rt := m.runtime[storeId]
	s := m.stores[storeId]
	prevMeta := rt.snapshotMeta()

	if err := s.Stop(); err != nil {
		return fmt.Errorf("stop before full-sync: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			fallback := resumeMetaOnFailure(prevMeta)
			rt.setMeta(fallback)
			_ = persistMeta(s, fallback)
		}
	}()

	if err := s.Clear(); err != nil {
		m.logger.Fatalf("store %d: clear before full-sync failed: %v", storeId, err)
	}

	conn, err := netw.DialTCP(m.addr(storeId), initialReadTimeout)
	if err != nil {
		return fmt.Errorf("dial primary: %w", err)
	}
	defer conn.Close()

	if err := conn.WriteLine(fmt.Sprintf("FULLSYNC %d", prevMeta.SyncFromId), lineWriteTimeout); err != nil {
		return err
	}
	line, err := conn.ReadLine(initialReadTimeout)
	if err != nil {
		return err
	}
	if len(line) == 0 || line[0] == '-' {
		return fmt.Errorf("primary rejected full-sync: %q", line)
	}

	var manifest map[string]int64
	if err := json.Unmarshal([]byte(line), &manifest); err != nil {
		return fmt.Errorf("malformed manifest: %w", err)
	}

	transferMeta := prevMeta
	transferMeta.ReplState = StateTransfer
	transferMeta.BinlogId = rkvcommon.MaxValidTxnId + 1
	rt.setMeta(transferMeta)
	if err := persistMeta(s, transferMeta); err != nil {
		return err
	}

	backupDir := s.BackupDir()
	if _, statErr := os.Stat(backupDir); statErr == nil {
		m.logger.Fatalf("store %d: backup dir %s already exists before full-sync", storeId, backupDir)
	}

	received := map[string]bool{}
	for len(received) < len(manifest) {
		name, err := conn.ReadLine(lineReadTimeout)
		if err != nil {
			return err
		}
		size, ok := manifest[name]
		if !ok {
			m.logger.Fatalf("store %d: primary sent unknown file %q", storeId, name)
		}
		if received[name] {
			m.logger.Fatalf("store %d: primary sent duplicate file %q", storeId, name)
		}

		if err := receiveFile(conn, backupDir, name, size); err != nil {
			return fmt.Errorf("receive %s: %w", name, err)
		}
		received[name] = true
	}

	if err := conn.WriteLine("+OK", lineWriteTimeout); err != nil {
		return err
	}

	resumeBinlogId, err := s.Restart(true)
	if err != nil {
		m.logger.Fatalf("store %d: restart from backup failed: %v", storeId, err)
	}
	if resumeBinlogId == rkvcommon.TxnIdUninited {
		m.logger.Fatalf("store %d: primary failed to guarantee a resumable binlog id", storeId)
	}

	connectedMeta := transferMeta
	connectedMeta.ReplState = StateConnected
	connectedMeta.BinlogId = resumeBinlogId
	rt.setMeta(connectedMeta)
	if err := persistMeta(s, connectedMeta); err != nil {
		return err
	}

	committed = true
	m.logger.Infof("store %d: full-sync complete, resuming from binlog %d", storeId, resumeBinlogId)
	return nil
}

func receiveFile(conn netw.NetConn, backupDir, relName string, size int64) error {
	fullPath := filepath.Join(backupDir, filepath.FromSlash(relName))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	defer f.Close()

	remaining := size
	buf := make([]byte, netw.ChunkSize)
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		if err := conn.ReadFull(buf[:chunk], lineReadTimeout); err != nil {
			return err
		}
		if _, err := f.Write(buf[:chunk]); err != nil {
			return err
		}
		metrics.AddBytesTransferred(chunk)
		remaining -= chunk
	}
	return nil
}
