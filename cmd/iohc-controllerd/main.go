// iohc-controllerd is the long-running controller daemon: it wires
// the Frame Codec, Crypto Kernel, Device Registry, Radio Gateway,
// Pairing Engine, and Authenticated Command Gateway together, runs
// the cooperative tick loop, and answers operator commands from
// iohc-admin over its admin RPC endpoint.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kfroeschl/iohomecontrol-ai/internal/adminrpc"
	"github.com/kfroeschl/iohomecontrol-ai/internal/audit"
	"github.com/kfroeschl/iohomecontrol-ai/internal/command"
	"github.com/kfroeschl/iohomecontrol-ai/internal/config"
	"github.com/kfroeschl/iohomecontrol-ai/internal/crypto"
	"github.com/kfroeschl/iohomecontrol-ai/internal/frame"
	"github.com/kfroeschl/iohomecontrol-ai/internal/jsonfile"
	"github.com/kfroeschl/iohomecontrol-ai/internal/pairing"
	"github.com/kfroeschl/iohomecontrol-ai/internal/radio"
	"github.com/kfroeschl/iohomecontrol-ai/internal/registry"
)

var (
	configFile string
	rootCmd    = &cobra.Command{
		Use:   "iohc-controllerd",
		Short: "IOHC sub-GHz pairing and authentication controller",
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the controller daemon",
		RunE:  runDaemon,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("iohc-controllerd v0.1.0")
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/iohc/controllerd.yaml", "Configuration file path")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// daemon bundles the wired-together components the admin RPC handler
// needs to answer requests.
type daemon struct {
	registry *registry.Registry
	engine   *pairing.Engine
	commands *command.Gateway
	radio    *radio.Gateway
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	if err := crypto.SelfTest(); err != nil {
		return fmt.Errorf("crypto self-test failed at startup: %w", err)
	}

	controllerAddr, err := cfg.ControllerAddress()
	if err != nil {
		return err
	}
	systemKey, err := cfg.SystemKey()
	if err != nil {
		return err
	}

	var persister registry.Persister
	if cfg.Registry.PersistPath != "" {
		persister = jsonfile.Open(cfg.Registry.PersistPath)
	}
	reg := registry.New(persister)

	var auditSink pairing.AuditSink
	if cfg.Registry.AuditDBPath != "" {
		db, err := audit.Open(cfg.Registry.AuditDBPath)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		defer db.Close()
		auditSink = audit.NewSink(db)
	}

	gw := radio.New(radio.Config{
		EventURL:   cfg.Radio.EventURL,
		CommandURL: cfg.Radio.CommandURL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start radio gateway: %w", err)
	}
	defer gw.Stop()

	engine := pairing.New(reg, gw, controllerAddr)
	engine.SetSystemKey(systemKey)
	if auditSink != nil {
		engine.SetAuditSink(auditSink)
	}
	if cfg.Controller.PairingTimeoutMS > 0 {
		engine.SetPairingDeadline(cfg.PairingTimeout())
	}

	cmdGW := command.New(reg, gw, controllerAddr)

	// engineMu serializes inbound dispatch, admin requests, and the tick
	// loop, which run on separate goroutines.
	var engineMu sync.Mutex

	gw.OnReceive(func(f *frame.Frame) {
		engineMu.Lock()
		defer engineMu.Unlock()
		if engine.HandleInbound(f) == pairing.Consumed {
			return
		}
		cmdGW.HandleInbound(f)
	})

	d := &daemon{registry: reg, engine: engine, commands: cmdGW, radio: gw}

	var server *adminrpc.Server
	if cfg.Admin.ListenURL != "" {
		server, err = adminrpc.NewServer(ctx, cfg.Admin.ListenURL, func(req adminrpc.Request) adminrpc.Response {
			engineMu.Lock()
			defer engineMu.Unlock()
			return d.handleAdminRequest(req)
		})
		if err != nil {
			return fmt.Errorf("start admin rpc: %w", err)
		}
		defer server.Close()
		go func() {
			if err := server.Serve(ctx); err != nil {
				log.Printf("iohc-controllerd: admin rpc: %v", err)
			}
		}()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	log.Printf("iohc-controllerd: started, controller address %s", controllerAddr)
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			engineMu.Lock()
			engine.Tick(now)
			reg.SweepTimedOut(now, engine.PairingDeadline())
			engineMu.Unlock()
		case sig := <-sigChan:
			log.Printf("iohc-controllerd: received %v, shutting down", sig)
			return nil
		}
	}
}

// handleAdminRequest implements the operator command surface against
// this daemon's in-process components.
func (d *daemon) handleAdminRequest(req adminrpc.Request) adminrpc.Response {
	switch req.Verb {
	case "pair":
		return d.handlePair(req)
	case "autopair":
		d.engine.EnableAutoPair()
		return okResponse(nil)
	case "cancel":
		d.engine.CancelPairing()
		return okResponse(nil)
	case "list":
		return d.handleList()
	case "info":
		return d.handleInfo(req)
	case "delete":
		return d.handleDelete(req)
	case "on":
		return d.handleCommand(req, d.commands.PlugOn)
	case "off":
		return d.handleCommand(req, d.commands.PlugOff)
	case "status":
		return d.handleCommand(req, d.commands.StatusQuery)
	case "send-raw":
		return d.handleSendRaw(req)
	case "verify-crypto":
		return d.handleVerifyCrypto()
	default:
		return errResponse(fmt.Errorf("unknown verb %q", req.Verb))
	}
}

func (d *daemon) handlePair(req adminrpc.Request) adminrpc.Response {
	addr, err := parseAddress(req.Address)
	if err != nil {
		return errResponse(err)
	}
	if err := d.engine.StartPairing(addr); err != nil {
		return errResponse(err)
	}
	return okResponse(nil)
}

func (d *daemon) handleList() adminrpc.Response {
	type deviceSummary struct {
		Address string `json:"address"`
		State   string `json:"state"`
		Name    string `json:"name,omitempty"`
	}
	var out []deviceSummary
	for _, dev := range d.registry.ListAll() {
		out = append(out, deviceSummary{
			Address: dev.AddressStr,
			State:   dev.PairingState.String(),
			Name:    dev.Capabilities.Name,
		})
	}
	return okResponse(out)
}

func (d *daemon) handleInfo(req adminrpc.Request) adminrpc.Response {
	addr, err := parseAddress(req.Address)
	if err != nil {
		return errResponse(err)
	}
	dev, err := d.registry.Get(addr)
	if err != nil {
		return errResponse(err)
	}
	return okResponse(struct {
		Address      string `json:"address"`
		State        string `json:"state"`
		Name         string `json:"name"`
		HasSystemKey bool   `json:"hasSystemKey"`
		NodeType     uint16 `json:"nodeType"`
		NodeSubtype  uint8  `json:"nodeSubtype"`
	}{
		Address:      dev.AddressStr,
		State:        dev.PairingState.String(),
		Name:         dev.Capabilities.Name,
		HasSystemKey: dev.HasSystemKey,
		NodeType:     dev.Capabilities.NodeType,
		NodeSubtype:  dev.Capabilities.NodeSubtype,
	})
}

func (d *daemon) handleDelete(req adminrpc.Request) adminrpc.Response {
	addr, err := parseAddress(req.Address)
	if err != nil {
		return errResponse(err)
	}
	if err := d.registry.Remove(addr); err != nil {
		return errResponse(err)
	}
	return okResponse(nil)
}

func (d *daemon) handleCommand(req adminrpc.Request, op func(frame.Address, func(error)) error) adminrpc.Response {
	addr, err := parseAddress(req.Address)
	if err != nil {
		return errResponse(err)
	}
	if err := op(addr, nil); err != nil {
		return errResponse(err)
	}
	return okResponse(nil)
}

func (d *daemon) handleSendRaw(req adminrpc.Request) adminrpc.Response {
	addr, err := parseAddress(req.Address)
	if err != nil {
		return errResponse(err)
	}
	f, err := frame.New(d.engine.ControllerAddress(), addr, req.Cmd, req.Bytes)
	if err != nil {
		return errResponse(err)
	}
	if err := d.radio.Send(f, radio.SendOptions{}); err != nil {
		return errResponse(err)
	}
	return okResponse(nil)
}

func (d *daemon) handleVerifyCrypto() adminrpc.Response {
	if err := crypto.SelfTest(); err != nil {
		return errResponse(err)
	}
	return okResponse("crypto kernel self-test passed")
}

func parseAddress(s string) (frame.Address, error) {
	if s == "" {
		return frame.Address{}, fmt.Errorf("address is required")
	}
	return frame.ParseAddressHex(s)
}

func okResponse(v any) adminrpc.Response {
	if v == nil {
		return adminrpc.Response{OK: true}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errResponse(err)
	}
	return adminrpc.Response{OK: true, Result: data}
}

func errResponse(err error) adminrpc.Response {
	return adminrpc.Response{OK: false, Error: err.Error()}
}
