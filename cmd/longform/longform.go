// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ice-blockchain/longform/cfg"
	"github.com/ice-blockchain/longform/drafts"
	"github.com/ice-blockchain/longform/relay"
	"github.com/ice-blockchain/longform/signer"
)

var (
	cfgPath   string
	secretKey string
	draftID   string

	longform = &cobra.Command{
		Use:   "longform",
		Short: "longform",
	}
	syncDrafts = &cobra.Command{
		Use:   "sync",
		Short: "run the draft synchronization loop until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			engine, db, draftsCfg := buildEngine(ctx)
			defer db.Close()
			engine.Run(ctx, draftsCfg.SyncInterval)
		},
	}
	publishDraft = &cobra.Command{
		Use:   "publish",
		Short: "push one encrypted draft to the configured relays",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			engine, db, _ := buildEngine(ctx)
			defer db.Close()
			results, err := engine.Push(ctx, draftID)
			if err != nil {
				log.Panic(err)
			}
			for _, result := range results {
				log.Printf("%v: success=%v %v", result.Relay, result.Success, result.Message)
			}
			if !relay.AnySucceeded(results) {
				log.Panic("no relay accepted the draft")
			}
		},
	}
)

func init() {
	longform.PersistentFlags().StringVar(&cfgPath, "config", "", "path to the yaml configuration file")
	longform.PersistentFlags().StringVar(&secretKey, "secret-key", "", "hex secret key overriding the configured signing method")
	publishDraft.Flags().StringVar(&draftID, "draft", "", "id of the draft to publish")
	if err := publishDraft.MarkFlagRequired("draft"); err != nil {
		log.Panic(err)
	}
	longform.AddCommand(syncDrafts, publishDraft)
}

func buildEngine(ctx context.Context) (*drafts.Engine, *drafts.DB, *drafts.Config) {
	if cfgPath != "" {
		cfg.MustInit(cfgPath)
	} else {
		cfg.MustInit()
	}
	relayCfg := cfg.MustGet[relay.Config]()
	draftsCfg := cfg.MustGet[drafts.Config]()
	signerCfg := cfg.MustGet[signer.Config]()

	db, err := drafts.OpenDB(draftsCfg.StorePath)
	if err != nil {
		log.Panic(err)
	}
	sk := secretKey
	if sk == "" {
		sk = signerCfg.SecretKey
	}
	var bunker signer.Delegate
	if sk == "" && signerCfg.BunkerURL != "" {
		if bunker, err = signer.ConnectBunker(ctx, signerCfg.BunkerClientSecret, signerCfg.BunkerURL); err != nil {
			log.Panic(err)
		}
	}
	signerService := signer.New(sk, bunker, nil)
	client := relay.NewClient(relayCfg.QueryTimeout)
	publisher := relay.NewPublisher(relayCfg.PublishTimeout)

	return drafts.NewEngine(db, db, signerService, client, publisher, draftsCfg.Relays), db, draftsCfg
}

func main() {
	if err := longform.Execute(); err != nil {
		log.Panic(err)
	}
}
