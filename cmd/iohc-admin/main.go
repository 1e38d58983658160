// iohc-admin is the operator CLI for a running iohc-controllerd: it
// issues pairing, listing, and raw-frame-injection commands over the
// admin RPC endpoint and renders the daemon's JSON responses as text.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kfroeschl/iohomecontrol-ai/internal/adminrpc"
)

var (
	serverURL string
	rootCmd   = &cobra.Command{
		Use:   "iohc-admin",
		Short: "IOHC controller admin CLI",
		Long:  "Command-line tool for operating a running iohc-controllerd over its admin RPC endpoint.",
	}

	pairCmd = &cobra.Command{
		Use:   "pair <address>",
		Short: "Start a pairing session against a peripheral address",
		Args:  cobra.ExactArgs(1),
		RunE:  runPair,
	}

	autopairCmd = &cobra.Command{
		Use:   "autopair",
		Short: "Arm auto-pair: the next discovery answer from an unknown peripheral starts pairing",
		RunE:  runSimple("autopair"),
	}

	cancelCmd = &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the active pairing session",
		RunE:  runSimple("cancel"),
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List known devices",
		RunE:  runList,
	}

	infoCmd = &cobra.Command{
		Use:   "info <address>",
		Short: "Show a device's record",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <address>",
		Short: "Remove a device record",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	onCmd = &cobra.Command{
		Use:   "on <address>",
		Short: "Turn a paired plug actuator on",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddressVerb("on"),
	}

	offCmd = &cobra.Command{
		Use:   "off <address>",
		Short: "Turn a paired plug actuator off",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddressVerb("off"),
	}

	statusCmd = &cobra.Command{
		Use:   "status <address>",
		Short: "Query a paired device's current status",
		Args:  cobra.ExactArgs(1),
		RunE:  runAddressVerb("status"),
	}

	sendRawCmd = &cobra.Command{
		Use:   "send-raw <address> <cmd> [byte...]",
		Short: "Inject a raw command frame for bench testing",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runSendRaw,
	}

	verifyCryptoCmd = &cobra.Command{
		Use:   "verify-crypto",
		Short: "Ask the daemon to run its cryptographic kernel self-test",
		RunE:  runSimple("verify-crypto"),
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "tcp://127.0.0.1:5560", "Admin RPC endpoint")

	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(autopairCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(onCmd)
	rootCmd.AddCommand(offCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sendRawCmd)
	rootCmd.AddCommand(verifyCryptoCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func dial() (*adminrpc.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	c, err := adminrpc.Dial(ctx, serverURL)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return c, ctx, cancel, nil
}

func call(req adminrpc.Request) (adminrpc.Response, error) {
	c, _, cancel, err := dial()
	if err != nil {
		return adminrpc.Response{}, err
	}
	defer cancel()
	defer c.Close()

	resp, err := c.Call(req)
	if err != nil {
		return adminrpc.Response{}, err
	}
	if !resp.OK {
		return resp, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp, nil
}

// runSimple returns a RunE that issues a bare verb with no arguments.
func runSimple(verb string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		resp, err := call(adminrpc.Request{Verb: verb})
		if err != nil {
			return err
		}
		if len(resp.Result) > 0 {
			var s string
			if json.Unmarshal(resp.Result, &s) == nil {
				fmt.Println(s)
			}
		}
		return nil
	}
}

// runAddressVerb returns a RunE that issues verb against args[0] as
// the target address.
func runAddressVerb(verb string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		_, err := call(adminrpc.Request{Verb: verb, Address: args[0]})
		return err
	}
}

func runPair(cmd *cobra.Command, args []string) error {
	_, err := call(adminrpc.Request{Verb: "pair", Address: args[0]})
	return err
}

func runDelete(cmd *cobra.Command, args []string) error {
	_, err := call(adminrpc.Request{Verb: "delete", Address: args[0]})
	return err
}

type deviceSummary struct {
	Address string `json:"address"`
	State   string `json:"state"`
	Name    string `json:"name,omitempty"`
}

func runList(cmd *cobra.Command, args []string) error {
	resp, err := call(adminrpc.Request{Verb: "list"})
	if err != nil {
		return err
	}

	var devices []deviceSummary
	if err := json.Unmarshal(resp.Result, &devices); err != nil {
		return fmt.Errorf("iohc-admin: decode list response: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSTATE\tNAME")
	fmt.Fprintln(w, "-------\t-----\t----")
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d.Address, d.State, name)
	}
	return w.Flush()
}

type deviceInfo struct {
	Address      string `json:"address"`
	State        string `json:"state"`
	Name         string `json:"name"`
	HasSystemKey bool   `json:"hasSystemKey"`
	NodeType     uint16 `json:"nodeType"`
	NodeSubtype  uint8  `json:"nodeSubtype"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	resp, err := call(adminrpc.Request{Verb: "info", Address: args[0]})
	if err != nil {
		return err
	}

	var info deviceInfo
	if err := json.Unmarshal(resp.Result, &info); err != nil {
		return fmt.Errorf("iohc-admin: decode info response: %w", err)
	}

	fmt.Printf("Address:       %s\n", info.Address)
	fmt.Printf("State:         %s\n", info.State)
	if info.Name != "" {
		fmt.Printf("Name:          %s\n", info.Name)
	}
	fmt.Printf("Has SystemKey: %v\n", info.HasSystemKey)
	fmt.Printf("Node Type:     %#04x\n", info.NodeType)
	fmt.Printf("Node Subtype:  %#02x\n", info.NodeSubtype)
	return nil
}

// runSendRaw parses args[0] as the target address, args[1] as the
// command byte, and any remaining args as payload bytes, all hex,
// matching the send-raw testing surface's wire-level framing.
func runSendRaw(cmd *cobra.Command, args []string) error {
	cmdByte, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 8)
	if err != nil {
		return fmt.Errorf("iohc-admin: bad command byte %q: %w", args[1], err)
	}

	payload := make([]byte, 0, len(args)-2)
	for _, a := range args[2:] {
		b, err := strconv.ParseUint(strings.TrimPrefix(a, "0x"), 16, 8)
		if err != nil {
			return fmt.Errorf("iohc-admin: bad payload byte %q: %w", a, err)
		}
		payload = append(payload, byte(b))
	}

	_, err = call(adminrpc.Request{
		Verb:    "send-raw",
		Address: args[0],
		Cmd:     byte(cmdByte),
		Bytes:   payload,
	})
	return err
}
