// Command economyd wires every economy-core component into one running
// process: it owns no network surface of its own (that is explicitly out of
// scope — see DESIGN.md), but it is the reference assembly a transport layer
// embeds to get a working Balance/Escrow/Ledger/Settlement/Authority stack
// with durable snapshots and an authority event log.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/decred/slog"
	"github.com/vctt94/econcore/pkg/authority"
	authstore "github.com/vctt94/econcore/pkg/authority/internal/store"
	"github.com/vctt94/econcore/pkg/balance"
	"github.com/vctt94/econcore/pkg/econsnapshot"
	"github.com/vctt94/econcore/pkg/econtypes"
	"github.com/vctt94/econcore/pkg/escrow"
	"github.com/vctt94/econcore/pkg/ledger"
	"github.com/vctt94/econcore/pkg/rake"
	"github.com/vctt94/econcore/pkg/settlement"
	"github.com/vctt94/econcore/pkg/txn"
	"github.com/vctt94/econcore/pkg/utils"
)

func main() {
	var (
		dataDir        string
		debugLevel     string
		snapshotEvery  int
		eventQueueSize int
		eventWorkers   int
	)
	flag.StringVar(&dataDir, "datadir", filepath.Join(os.TempDir(), "econcore"), "Directory for sqlite stores and logs")
	flag.StringVar(&debugLevel, "debuglevel", "info", "Logging level: trace, debug, info, warn, error")
	flag.IntVar(&snapshotEvery, "retain", econsnapshot.DefaultRetention, "Number of snapshots to retain per run")
	flag.IntVar(&eventQueueSize, "eventqueue", 256, "Authority event bus queue depth")
	flag.IntVar(&eventWorkers, "eventworkers", 2, "Authority event bus worker count")
	flag.Parse()

	if err := utils.EnsureDataDirExists(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare datadir: %v\n", err)
		os.Exit(1)
	}

	backend := slog.NewBackend(os.Stdout)
	log := backend.Logger("ECON")
	level, ok := slog.LevelFromString(debugLevel)
	if !ok {
		level = slog.LevelInfo
	}
	log.SetLevel(level)

	clock := econtypes.SystemClock{}

	balances := balance.New(backend.Logger("BAL"), clock)
	escrows := escrow.New(backend.Logger("ESC"), clock, balances)
	ledgr := ledger.New(backend.Logger("LDG"), clock, "genesis")
	coord := txn.New(backend.Logger("TXN"), clock)
	settleEng := settlement.New(backend.Logger("SET"), escrows, ledgr, coord)

	snapMgr, err := econsnapshot.New(backend.Logger("SNP"), clock, balances, escrows, ledgr, settleEng, filepath.Join(dataDir, "snapshots.sqlite"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open snapshot store: %v\n", err)
		os.Exit(1)
	}
	defer snapMgr.Close()
	snapMgr.SetRetention(snapshotEvery)

	authStore, err := authstore.Open(filepath.Join(dataDir, "authority.sqlite"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open authority store: %v\n", err)
		os.Exit(1)
	}
	defer authStore.Close()

	registry := authority.NewRegistry()
	bus := authority.NewBus(backend.Logger("EVT"), eventQueueSize)
	bus.Subscribe(func(e authority.Event) {
		if err := authStore.AppendEvent(authstore.EventRow{
			EventID:   e.EventID,
			Type:      string(e.Type),
			ClubID:    string(e.ClubID),
			TableID:   string(e.TableID),
			ActorID:   string(e.ActorID),
			TargetID:  string(e.TargetID),
			Timestamp: e.Timestamp,
		}, e.Data); err != nil {
			log.Warnf("failed to persist authority event %s: %v", e.EventID, err)
		}
	})
	bus.Start(eventWorkers)
	defer bus.Stop()

	authEngine := authority.New(backend.Logger("AUT"), clock, registry, bus, balances, escrows, ledgr, settleEng)

	// Seed a default club and table so the process is immediately usable by
	// an embedding transport layer without a separate provisioning step.
	defaultClub := authority.NewClub("default", "system", 0, 1_000_000, rake.Config{
		PolicyName:        "standard-5pct",
		DefaultPercentage: 5,
		DefaultCap:        300,
		NoFlopNoRake:      true,
	})
	registry.Put(defaultClub)

	if _, err := authEngine.CreateTable("default", "system", "table-1", 9, 2); err != nil {
		log.Errorf("failed to seed default table: %v", err)
	}

	log.Infof("economy core ready: datadir=%s", dataDir)
	select {}
}
