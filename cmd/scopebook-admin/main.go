// ABOUTME: Admin CLI for browsing estimates, views and versions over the HTTP API
// ABOUTME: Talks JSON to a running scopebook server with owner-header identity

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

const banner = `
                                _                 _
  ___  ___ ___  _ __   ___  ___| |__   ___   ___ | | __
 / __|/ __/ _ \| '_ \ / _ \/ __| '_ \ / _ \ / _ \| |/ /
 \__ \ (_| (_) | |_) |  __/\__ \ |_) | (_) | (_) |   <
 |___/\___\___/| .__/ \___||___/_.__/ \___/ \___/|_|\_\
               |_|                          admin
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	client := newClient(cfg)

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "estimates", "ls":
		err = cmdEstimates(client)
	case "show":
		err = cmdShow(client, args)
	case "views":
		err = cmdViews(client, args)
	case "versions":
		err = cmdVersions(client, args)
	case "snapshot":
		err = cmdSnapshot(client, args)
	case "restore":
		err = cmdRestore(client, args)
	case "status":
		err = cmdStatus(client)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: scopebook-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  estimates                      List your estimates")
	fmt.Println("  show <estimate-id>             Show an estimate's sections and items")
	fmt.Println("  views <estimate-id>            List an estimate's views and share links")
	fmt.Println("  versions <estimate-id>         List an estimate's versions")
	fmt.Println("  snapshot <estimate-id> [name]  Create a version snapshot")
	fmt.Println("  restore <estimate-id> <version-id>  Restore a version")
	fmt.Println("  status                         Show server status")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  SCOPEBOOK_SERVER_URL     Server base URL (default: http://localhost:8080)")
	fmt.Println("  SCOPEBOOK_OWNER          Owner id sent with every request (required)")
	fmt.Println("  SCOPEBOOK_ADMIN_CONFIG   Path to admin.toml (default: ~/.config/scopebook/admin.toml)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  export SCOPEBOOK_OWNER=\"owner-1\"")
	fmt.Println("  scopebook-admin estimates")
	fmt.Println("  scopebook-admin snapshot 4f2a... 'sent to client'")
	fmt.Println()
}

// apiClient wraps the HTTP API with owner-header auth.
type apiClient struct {
	baseURL string
	ownerID string
	http    *http.Client
}

func newClient(cfg *Config) *apiClient {
	return &apiClient{
		baseURL: cfg.Server.URL,
		ownerID: cfg.Owner.ID,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// do sends a request and decodes the JSON response into out (when non-nil).
// Non-2xx responses surface the server's error message.
func (c *apiClient) do(method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Scopebook-Owner", c.ownerID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

type estimateRow struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"created_at"`
	SyncedAt  *time.Time `json:"synced_at"`
}

type viewRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LinkToken string `json:"link_token"`
	Protected bool   `json:"protected"`
}

type versionRow struct {
	ID        string    `json:"id"`
	Number    int       `json:"number"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type itemSettingRow struct {
	Price   float64 `json:"price"`
	Total   float64 `json:"total"`
	Visible bool    `json:"visible"`
}

type treeRow struct {
	Estimate estimateRow `json:"estimate"`
	Views    []viewRow   `json:"views"`
	Sections []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Items []struct {
			ID        string                    `json:"id"`
			DisplayNo string                    `json:"display_no"`
			Name      string                    `json:"name"`
			Unit      string                    `json:"unit"`
			Quantity  float64                   `json:"quantity"`
			Settings  map[string]itemSettingRow `json:"settings"`
		} `json:"items"`
	} `json:"sections"`
}

func cmdEstimates(client *apiClient) error {
	var estimates []estimateRow
	if err := client.do("GET", "/api/estimates", nil, &estimates); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Estimates")
	cyan.Println("  ---------")

	if len(estimates) == 0 {
		fmt.Println("  (no estimates)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tTITLE\tCREATED\tSYNCED")
	fmt.Fprintln(w, "  --\t-----\t-------\t------")
	for _, e := range estimates {
		synced := "-"
		if e.SyncedAt != nil {
			synced = e.SyncedAt.Format("Jan 02 15:04")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n",
			truncate(e.ID, 12), truncate(e.Title, 32), e.CreatedAt.Format("Jan 02 15:04"), synced)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdShow(client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: show <estimate-id>")
	}

	var tree treeRow
	if err := client.do("GET", "/api/estimates/"+args[0], nil, &tree); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	fmt.Println()
	cyan.Printf("  %s\n", tree.Estimate.Title)
	gray.Printf("  %s\n", tree.Estimate.ID)
	fmt.Println()

	for _, sec := range tree.Sections {
		cyan.Printf("  %s\n", sec.Name)
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, item := range sec.Items {
			fmt.Fprintf(w, "    %s\t%s\t%.2f %s\n", item.DisplayNo, item.Name, item.Quantity, item.Unit)
		}
		w.Flush()
	}
	fmt.Println()
	return nil
}

func cmdViews(client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: views <estimate-id>")
	}

	var tree treeRow
	if err := client.do("GET", "/api/estimates/"+args[0], nil, &tree); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Views")
	cyan.Println("  -----")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tLINK\tPROTECTED")
	fmt.Fprintln(w, "  --\t----\t----\t---------")
	for _, v := range tree.Views {
		protected := "no"
		if v.Protected {
			protected = "yes"
		}
		fmt.Fprintf(w, "  %s\t%s\t/public/%s\t%s\n", truncate(v.ID, 12), v.Name, v.LinkToken, protected)
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdVersions(client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: versions <estimate-id>")
	}

	var versions []versionRow
	if err := client.do("GET", "/api/estimates/"+args[0]+"/versions", nil, &versions); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Versions")
	cyan.Println("  --------")

	if len(versions) == 0 {
		fmt.Println("  (no versions)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  NO\tID\tNAME\tCREATED")
	fmt.Fprintln(w, "  --\t--\t----\t-------")
	for _, v := range versions {
		name := v.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(w, "  %d\t%s\t%s\t%s\n", v.Number, truncate(v.ID, 12), name, v.CreatedAt.Format("Jan 02 15:04"))
	}
	w.Flush()
	fmt.Println()
	return nil
}

func cmdSnapshot(client *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: snapshot <estimate-id> [name]")
	}
	name := ""
	if len(args) > 1 {
		name = args[1]
	}

	var ver versionRow
	body := map[string]string{"name": name}
	if err := client.do("POST", "/api/estimates/"+args[0]+"/versions", body, &ver); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ Created version %d: %s\n", ver.Number, ver.ID)
	return nil
}

func cmdRestore(client *apiClient, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: restore <estimate-id> <version-id>")
	}

	path := "/api/estimates/" + args[0] + "/versions/" + args[1] + "/restore"
	if err := client.do("POST", path, nil, nil); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Printf("✓ Restored version %s\n", args[1])
	yellow.Println("  Note: all share links were re-minted and passwords cleared.")
	return nil
}

func cmdStatus(client *apiClient) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	var estimates []estimateRow
	if err := client.do("GET", "/api/estimates", nil, &estimates); err != nil {
		yellow.Printf("  Server:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}

	green.Printf("  Server:  ")
	fmt.Printf("connected to %s\n", client.baseURL)
	green.Printf("  Owner:   ")
	fmt.Printf("%s (%d estimate(s))\n", client.ownerID, len(estimates))
	fmt.Println()
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}
