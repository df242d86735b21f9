package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hc1node/forkmonitor/internal/entity"
	nsq_controller "github.com/hc1node/forkmonitor/internal/controller/nsq"
)

// statusTimeout bounds the snapshot request of the status command.
const statusTimeout = 10 * time.Second

// Status retrieves the current snapshot from a running monitor's REST API and
// renders it as tables into w.
func Status(ctx context.Context, api string, w io.Writer) error {
	snap, err := fetchSnapshot(ctx, api)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, entity.ReportSnapshot(snap))
	return err
}

func fetchSnapshot(ctx context.Context, api string) (*entity.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(api, "/")+"/api/snapshot", nil)
	if err != nil {
		return nil, err
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach monitor: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("monitor responded with %s", res.Status)
	}
	snap := new(entity.Snapshot)
	if err := json.NewDecoder(res.Body).Decode(snap); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}
	return snap, nil
}

// WatchConfig selects the broker a watcher subscribes to.
type WatchConfig struct {
	Topic   string
	Channel string
	NSQD    string
	Lookupd string
}

// Watch subscribes to the snapshot broadcast and renders every received
// snapshot into w until the context is cancelled.
func Watch(ctx context.Context, cfg WatchConfig, w io.Writer) error {
	var lock sync.Mutex // Consumer handlers may run concurrently

	consumer, err := nsq_controller.Subscribe(cfg.Topic, cfg.Channel, cfg.NSQD, cfg.Lookupd, func(msg *entity.Message) {
		if msg.MessageType == entity.ForkMessage {
			for _, entry := range msg.Snapshot.Consensus {
				if entry.Forked() {
					log.Warn("Fork broadcast received", "height", entry.Height, "hashes", len(entry.Hashes))
				}
			}
		}
		lock.Lock()
		defer lock.Unlock()

		fmt.Fprintf(w, "%s\n", entity.ReportSnapshot(msg.Snapshot))
	})
	if err != nil {
		return err
	}
	<-ctx.Done()

	consumer.Stop()
	<-consumer.StopChan
	return nil
}
