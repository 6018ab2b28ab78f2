package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"llmgate/config"
	"llmgate/httpapi"
	"llmgate/mcp"
	"llmgate/storage"
)

const Version = "v0.01.00"

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/llmgate/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	setCredential := flag.String("set-credential", "", "store a provider API key as id=key and exit")
	deleteCredential := flag.String("delete-credential", "", "remove a stored provider API key and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("llmgate %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize debug logging after config is loaded
	config.InitDebugLog(cfg.DataDir())

	if *setCredential != "" || *deleteCredential != "" {
		if err := manageCredentials(cfg, *setCredential, *deleteCredential); err != nil {
			fmt.Fprintf(os.Stderr, "Credential update failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := loadCredentials(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credentials: %v\n", err)
		os.Exit(1)
	}

	store, err := storage.Open(filepath.Join(cfg.DataDir(), "threads.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open thread storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	manager := mcp.NewManager()
	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	for _, ts := range cfg.ToolServers {
		err := manager.Start(startCtx, mcp.ServerConfig{
			ID:        ts.ID,
			Transport: mcp.TransportKind(ts.Transport),
			URL:       ts.URL,
			Headers:   ts.Headers,
			Command:   ts.Command,
			Args:      ts.Args,
			Env:       ts.Env,
		})
		if err != nil {
			// A failed tool server is degraded service, not fatal.
			fmt.Fprintf(os.Stderr, "Warning: tool server %s failed to start: %v\n", ts.ID, err)
		}
	}
	cancel()

	api := httpapi.NewServer(cfg, store, manager)
	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: api.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("llmgate %s listening on %s\n", Version, cfg.Server.Listen)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
	case sig := <-sigCh:
		fmt.Printf("Received %s, shutting down\n", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: HTTP shutdown: %v", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil && config.DebugLog != nil {
		config.DebugLog.Printf("Warning: tool server shutdown: %v", err)
	}
}

// newCredentialStore builds the store for the configured security method.
// An encrypted SSH key takes its passphrase from LLMGATE_SSH_PASSPHRASE.
func newCredentialStore(cfg *config.Config) *config.CredentialStore {
	method := config.SecurityPlainText
	if cfg.Security.CredentialStorage == "ssh_key" {
		method = config.SecuritySSHKey
	}

	creds := config.NewCredentialStore(method, cfg.Security.SSHKeyPath)
	if passphrase := os.Getenv("LLMGATE_SSH_PASSPHRASE"); passphrase != "" {
		creds.SetPassphrase(passphrase)
	}
	return creds
}

// manageCredentials handles the -set-credential / -delete-credential flags:
// load, mutate, save, exit.
func manageCredentials(cfg *config.Config, setArg, deleteArg string) error {
	creds := newCredentialStore(cfg)
	if err := creds.Load(cfg.DataDir()); err != nil {
		return err
	}

	switch {
	case setArg != "":
		id, key, ok := strings.Cut(setArg, "=")
		if !ok || id == "" || key == "" {
			return fmt.Errorf("expected -set-credential provider-id=api-key")
		}
		if err := creds.Set(id, key); err != nil {
			return err
		}
		if err := creds.Save(cfg.DataDir()); err != nil {
			return err
		}
		fmt.Printf("Stored credential for %s (storage: %s)\n", id, creds.GetMethod())

	case deleteArg != "":
		if err := creds.Delete(deleteArg); err != nil {
			return err
		}
		if err := creds.Save(cfg.DataDir()); err != nil {
			return err
		}
		fmt.Printf("Removed credential for %s (storage: %s)\n", deleteArg, creds.GetMethod())
	}
	return nil
}

// loadCredentials overlays stored per-provider API keys onto the config.
// Keys from the config file or environment win over the credential store.
func loadCredentials(cfg *config.Config) error {
	creds := newCredentialStore(cfg)
	if err := creds.Load(cfg.DataDir()); err != nil {
		return err
	}

	for id, pc := range cfg.Providers {
		if pc.APIKey == "" {
			if key := creds.Get(id); key != "" {
				pc.APIKey = key
				cfg.Providers[id] = pc
			}
		}
	}
	return nil
}
