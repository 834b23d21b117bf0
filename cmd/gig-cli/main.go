package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"

	"gigledger/crypto"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via GIG_RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("GIG_RPC_TOKEN")

func main() {
	args := os.Args[1:]
	var err error
	args, err = applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if len(args) < 1 {
		printUsage()
		return
	}

	command := args[0]
	switch command {
	case "generate-key":
		encrypted := len(args) > 1 && args[1] == "--keystore"
		generateKey(encrypted)
	case "balance":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		getBalance(args[1])
	case "register":
		if len(args) < 3 {
			fmt.Println("Error: Please provide a role (contractor|worker) and a key file.")
			printUsage()
			return
		}
		register(args[1], args[2])
	case "reputation":
		if len(args) < 2 {
			fmt.Println("Error: Please provide an address.")
			printUsage()
			return
		}
		reputation(args[1])
	case "create":
		if len(args) < 4 {
			fmt.Println("Error: Please provide a fee, a key file and a description.")
			printUsage()
			return
		}
		createGig(args[1], args[2], strings.Join(args[3:], " "))
	case "accept":
		gigAction(args, "gig_accept")
	case "complete":
		gigAction(args, "gig_complete")
	case "confirm":
		gigAction(args, "gig_confirmAndPay")
	case "cancel":
		gigAction(args, "gig_cancel")
	case "rate":
		if len(args) < 5 {
			fmt.Println("Error: Please provide a gig id, a target address, a rating and a key file.")
			printUsage()
			return
		}
		rateWorker(args[1], args[2], args[3], args[4])
	case "get":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a gig id.")
			printUsage()
			return
		}
		getGig(args[1], "gig_get")
	case "status":
		if len(args) < 2 {
			fmt.Println("Error: Please provide a gig id.")
			printUsage()
			return
		}
		getGig(args[1], "gig_status")
	case "events":
		after := "0"
		if len(args) > 1 {
			after = args[1]
		}
		listEvents(after)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
	}
}

func printUsage() {
	fmt.Println(`Usage: gig-cli [--rpc <url>] <command> [args]

Commands:
  generate-key [--keystore]                  Create a new wallet key (wallet.key); --keystore
                                             encrypts it with GIG_WALLET_PASS
  balance <address>                          Show the native balance of an address
  register <contractor|worker> <keyfile>     Register the key's address under a role
  reputation <address>                       Show role and floor-averaged score
  create <fee> <keyfile> <description...>    Open a gig, escrowing exactly <fee>
  accept <id> <keyfile>                      Accept an open gig as worker
  complete <id> <keyfile>                    Mark an accepted gig completed
  confirm <id> <keyfile>                     Confirm completion and release escrow
  cancel <id> <keyfile>                      Cancel an open gig and reclaim escrow
  rate <id> <target> <rating> <keyfile>      Rate the worker on a paid gig (1-5)
  get <id>                                   Show the full gig record
  status <id>                                Show the gig lifecycle status
  events [after]                             List committed notifications after a sequence number

Mutating commands require GIG_RPC_TOKEN to be set.`)
}

func defaultRPCEndpoint() string {
	if fromEnv := strings.TrimSpace(os.Getenv("GIG_RPC_URL")); fromEnv != "" {
		return fromEnv
	}
	return "http://localhost:8545/rpc"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--rpc":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--rpc requires a URL argument")
			}
			rpcEndpoint = args[i+1]
			i++
		case strings.HasPrefix(args[i], "--rpc="):
			rpcEndpoint = strings.TrimPrefix(args[i], "--rpc=")
		default:
			out = append(out, args[i])
		}
	}
	if strings.TrimSpace(rpcEndpoint) == "" {
		return nil, fmt.Errorf("rpc endpoint must not be empty")
	}
	return out, nil
}

func generateKey(encrypted bool) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		panic(err)
	}

	fileName := "wallet.key"
	if encrypted {
		passphrase := os.Getenv(walletPassEnv)
		if strings.TrimSpace(passphrase) == "" {
			fmt.Fprintf(os.Stderr, "Error: --keystore requires %s to be set\n", walletPassEnv)
			os.Exit(1)
		}
		if err := crypto.SaveToKeystore(fileName, key, passphrase); err != nil {
			panic(fmt.Sprintf("Failed to save keystore to %s: %v", fileName, err))
		}
	} else {
		if err := os.WriteFile(fileName, key.Bytes(), 0600); err != nil {
			panic(fmt.Sprintf("Failed to save key to %s: %v", fileName, err))
		}
	}

	fmt.Printf("Generated new key and saved to %s\n", fileName)
	fmt.Printf("Your public address is: %s\n", key.PubKey().Address().String())
	fmt.Println("Store this file securely. Commands will refuse to run without a local key.")
}

const walletPassEnv = "GIG_WALLET_PASS"

func loadAddress(keyPath string) (string, error) {
	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("private key file %s not found. run ./gig-cli generate-key first", keyPath)
		}
		return "", fmt.Errorf("failed to read private key file %s: %w", keyPath, err)
	}
	if len(keyBytes) == 0 {
		return "", fmt.Errorf("private key file %s is empty. run ./gig-cli generate-key first", keyPath)
	}

	// Keystore files are JSON; raw key files are 32 bytes of key material.
	if bytes.HasPrefix(bytes.TrimSpace(keyBytes), []byte("{")) {
		passphrase := os.Getenv(walletPassEnv)
		if strings.TrimSpace(passphrase) == "" {
			return "", fmt.Errorf("keystore file %s requires %s to be set", keyPath, walletPassEnv)
		}
		privKey, err := crypto.LoadFromKeystore(keyPath, passphrase)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt keystore %s: %w", keyPath, err)
		}
		return privKey.PubKey().Address().String(), nil
	}

	privKey, err := crypto.PrivateKeyFromBytes(keyBytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse private key in %s: %w", keyPath, err)
	}
	return privKey.PubKey().Address().String(), nil
}

func getBalance(address string) {
	result, err := callRPC("ledger_getBalance", map[string]interface{}{"address": address}, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(result)
}

func register(role, keyPath string) {
	address, err := loadAddress(keyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	result, err := callRPC("registry_register", map[string]interface{}{
		"address": address,
		"role":    role,
	}, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(result)
}

func reputation(address string) {
	result, err := callRPC("registry_reputation", map[string]interface{}{"address": address}, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(result)
}

func createGig(fee, keyPath, description string) {
	if _, ok := new(big.Int).SetString(fee, 10); !ok {
		fmt.Fprintf(os.Stderr, "Error: invalid fee %q\n", fee)
		os.Exit(1)
	}
	address, err := loadAddress(keyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	result, err := callRPC("gig_create", map[string]interface{}{
		"caller":      address,
		"description": description,
		"fee":         fee,
		"attached":    fee,
	}, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(result)
}

func gigAction(args []string, method string) {
	if len(args) < 3 {
		fmt.Println("Error: Please provide a gig id and a key file.")
		printUsage()
		return
	}
	id, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid gig id %q\n", args[1])
		os.Exit(1)
	}
	address, err := loadAddress(args[2])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	result, err := callRPC(method, map[string]interface{}{
		"id":     id,
		"caller": address,
	}, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(result)
}

func rateWorker(idArg, target, ratingArg, keyPath string) {
	id, err := strconv.ParseUint(idArg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid gig id %q\n", idArg)
		os.Exit(1)
	}
	rating, err := strconv.ParseUint(ratingArg, 10, 8)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid rating %q\n", ratingArg)
		os.Exit(1)
	}
	address, err := loadAddress(keyPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	result, err := callRPC("gig_rate", map[string]interface{}{
		"id":     id,
		"caller": address,
		"target": target,
		"rating": rating,
	}, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(result)
}

func getGig(idArg, method string) {
	id, err := strconv.ParseUint(idArg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid gig id %q\n", idArg)
		os.Exit(1)
	}
	result, err := callRPC(method, map[string]interface{}{"id": id}, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(result)
}

func listEvents(afterArg string) {
	after, err := strconv.ParseUint(afterArg, 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid sequence number %q\n", afterArg)
		os.Exit(1)
	}
	result, err := callRPC("gig_listEvents", map[string]interface{}{"after": after}, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	printJSON(result)
}

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  []interface{}{param},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if strings.TrimSpace(rpcAuthToken) == "" {
			return nil, fmt.Errorf("privileged RPC call requires GIG_RPC_TOKEN to be set")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from node: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, fmt.Errorf("error from node: %s", rpcResp.Error.Message)
	}
	return rpcResp.Result, nil
}

func printJSON(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}
