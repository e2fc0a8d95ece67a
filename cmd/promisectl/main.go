package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	gateway := os.Getenv("SELFPROMISE_GATEWAY_URL")
	if gateway == "" {
		gateway = "http://localhost:8080"
	}

	switch os.Args[1] {
	case "templates":
		cmdTemplates(gateway)
	case "create":
		cmdCreate(gateway)
	case "deposit":
		cmdDeposit(gateway)
	case "evaluate":
		cmdEvaluate(gateway)
	case "resolve":
		cmdResolve(gateway)
	case "status":
		cmdStatus(gateway)
	case "version":
		fmt.Printf("promisectl v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Promise Escrow CLI v` + version + `

Usage: promisectl <command> [flags]

Commands:
  templates  List available promise templates
  create     Create a promise from a template
  deposit    Stake collateral against a promise
  evaluate   Run the evaluator over the promise window
  resolve    Settle a promise after evaluation
  status     Show a promise's state, deposit and verdict
  version    Print version
  help       Show this help

Environment:
  SELFPROMISE_GATEWAY_URL   Gateway URL (default: http://localhost:8080)

Examples:
  promisectl templates
  promisectl create --owner alice --template 1 --start 2026-01-05T00:00:00Z --end 2026-02-02T00:00:00Z
  promisectl deposit --principal alice --promise 0xabc... --amount 50
  promisectl evaluate --promise 0xabc...
  promisectl resolve --promise 0xabc...`)
}

// ----------------------------------------------------------------
// commands
// ----------------------------------------------------------------

func cmdTemplates(gateway string) {
	resp, err := doRequest("GET", gateway+"/api/templates", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}

	var templates []map[string]interface{}
	json.Unmarshal(resp, &templates)

	if len(templates) == 0 {
		fmt.Println("No templates available.")
		return
	}

	fmt.Printf("%-4s %-24s %-24s %s\n", "ID", "NAME", "TYPE", "ACTIVE")
	fmt.Println("------------------------------------------------------------")
	for _, t := range templates {
		fmt.Printf("%-4.0f %-24s %-24s %v\n",
			toFloat(t["id"]), t["name"], t["promise_type"], t["active"])
	}
}

func cmdCreate(gateway string) {
	var owner, start, end, fallback string
	var template float64

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--owner":
			i++
			if i < len(args) {
				owner = args[i]
			}
		case "--template":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%f", &template)
			}
		case "--start":
			i++
			if i < len(args) {
				start = args[i]
			}
		case "--end":
			i++
			if i < len(args) {
				end = args[i]
			}
		case "--fallback":
			i++
			if i < len(args) {
				fallback = args[i]
			}
		}
	}

	if owner == "" || template == 0 || start == "" || end == "" {
		fmt.Fprintln(os.Stderr, "Usage: promisectl create --owner <id> --template <id> --start <RFC3339> --end <RFC3339> [--fallback <recipient>]")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"owner":              owner,
		"template_id":        template,
		"start":              start,
		"end":                end,
		"fallback_recipient": fallback,
	})

	resp, err := doRequest("POST", gateway+"/api/promises", body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}

	var result map[string]interface{}
	json.Unmarshal(resp, &result)
	if e, ok := result["error"]; ok {
		fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		os.Exit(1)
	}
	fmt.Printf("Created promise %s\n", result["promise_id"])
}

func cmdDeposit(gateway string) {
	var principal, promiseID string
	var amount int64

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--principal":
			i++
			if i < len(args) {
				principal = args[i]
			}
		case "--promise":
			i++
			if i < len(args) {
				promiseID = args[i]
			}
		case "--amount":
			i++
			if i < len(args) {
				fmt.Sscanf(args[i], "%d", &amount)
			}
		}
	}

	if principal == "" || promiseID == "" || amount == 0 {
		fmt.Fprintln(os.Stderr, "Usage: promisectl deposit --principal <id> --promise <id> --amount <n>")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"principal":  principal,
		"promise_id": promiseID,
		"amount":     amount,
	})

	resp, err := doRequest("POST", gateway+"/api/deposits", body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}

	var result map[string]interface{}
	json.Unmarshal(resp, &result)
	if e, ok := result["error"]; ok {
		fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		os.Exit(1)
	}
	fmt.Printf("Held %d for %s against %s\n", amount, principal, promiseID)
}

func cmdEvaluate(gateway string) {
	promiseID, evalName := promiseFlag("evaluate")

	payload := map[string]interface{}{}
	if evalName != "" {
		payload["evaluator"] = evalName
	}
	body, _ := json.Marshal(payload)

	resp, err := doRequest("POST", gateway+"/api/promises/"+promiseID+"/evaluate", body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}

	var result map[string]interface{}
	json.Unmarshal(resp, &result)
	if e, ok := result["error"]; ok {
		fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		os.Exit(1)
	}
	fmt.Printf("Verdict: fulfilled=%v confidence=%.0f\n%s\n",
		result["fulfilled"], toFloat(result["confidence"]), result["reasoning"])
}

func cmdResolve(gateway string) {
	promiseID, _ := promiseFlag("resolve")

	resp, err := doRequest("POST", gateway+"/api/promises/"+promiseID+"/resolve", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}

	var result map[string]interface{}
	json.Unmarshal(resp, &result)
	if e, ok := result["error"]; ok {
		fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		os.Exit(1)
	}
	fmt.Printf("Resolved: fulfilled=%v amount=%.0f -> %s\n",
		result["fulfilled"], toFloat(result["amount"]), result["recipient"])
}

func cmdStatus(gateway string) {
	promiseID, _ := promiseFlag("status")

	resp, err := doRequest("GET", gateway+"/api/promises/"+promiseID+"/status", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}

	var p map[string]interface{}
	json.Unmarshal(resp, &p)
	if e, ok := p["error"]; ok {
		fmt.Fprintf(os.Stderr, "Error: %s\n", e)
		os.Exit(1)
	}

	fmt.Printf("Promise: %s\nOwner:   %s\nType:    %s\nWindow:  %s -> %s\nState:   %s\n",
		p["id"], p["owner"], p["promise_type"], p["start"], p["end"], p["state"])

	if d, ok := p["deposit"].(map[string]interface{}); ok {
		fmt.Printf("Deposit: %.0f held for %s\n", toFloat(d["amount"]), d["principal"])
	} else {
		fmt.Println("Deposit: none")
	}
	if v, ok := p["verdict"].(map[string]interface{}); ok {
		fmt.Printf("Verdict: fulfilled=%v confidence=%.0f\n", v["fulfilled"], toFloat(v["confidence"]))
	}
}

// promiseFlag parses --promise and the optional --evaluator flag.
func promiseFlag(cmd string) (string, string) {
	var promiseID, evalName string

	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--promise":
			i++
			if i < len(args) {
				promiseID = args[i]
			}
		case "--evaluator":
			i++
			if i < len(args) {
				evalName = args[i]
			}
		}
	}

	if promiseID == "" {
		fmt.Fprintf(os.Stderr, "Usage: promisectl %s --promise <id>\n", cmd)
		os.Exit(1)
	}
	return promiseID, evalName
}

// ----------------------------------------------------------------
// helpers
// ----------------------------------------------------------------

func doRequest(method, url string, body []byte) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func toFloat(v interface{}) float64 {
	switch f := v.(type) {
	case float64:
		return f
	case int:
		return float64(f)
	default:
		return 0
	}
}
