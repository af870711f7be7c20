package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/tessera/internal/config"
	"github.com/dyluth/tessera/internal/identity"
	"github.com/dyluth/tessera/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	// ConfigFile is the configuration file Initialize writes.
	ConfigFile = config.DefaultPath

	// KeysDir holds the generated identity key files.
	KeysDir = "keys"
)

// Key files written under KeysDir.
var keyFiles = []string{"root.json", "authority.json"}

// Initialize creates a Tessera workspace in dir: tessera.yml and a keys/
// directory with a root identity and a session authority.
// If force is true, it will remove existing tessera.yml and keys/ directory
func Initialize(dir string, force bool) error {
	if force {
		if err := handleForce(dir); err != nil {
			return err
		}
	} else if err := CheckExisting(dir); err != nil {
		return err
	}

	content, err := templatesFS.ReadFile("templates/tessera.yml.tmpl")
	if err != nil {
		return fmt.Errorf("failed to read tessera.yml template: %w", err)
	}

	keysDir := filepath.Join(dir, KeysDir)
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", keysDir, err)
	}

	configPath := filepath.Join(dir, ConfigFile)
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", configPath, err)
	}

	for _, name := range keyFiles {
		kp, err := identity.GenerateKeyPair()
		if err != nil {
			return err
		}
		if err := identity.SaveKeyPair(filepath.Join(keysDir, name), kp); err != nil {
			return err
		}
	}

	return validateCreatedFiles(dir)
}

// handleForce removes existing files if --force was specified
func handleForce(dir string) error {
	configPath := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(configPath); err == nil {
		printer.Warning("Removing existing %s...\n", ConfigFile)
		if err := os.Remove(configPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
		}
	}

	keysDir := filepath.Join(dir, KeysDir)
	if info, err := os.Stat(keysDir); err == nil && info.IsDir() {
		printer.Warning("Removing existing %s/ directory...\n", KeysDir)
		if err := os.RemoveAll(keysDir); err != nil {
			return fmt.Errorf("failed to remove %s/ directory: %w", KeysDir, err)
		}
	}

	return nil
}

// validateCreatedFiles loads what was written the way every command will.
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, ConfigFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}
	for _, name := range keyFiles {
		if _, err := identity.LoadKeyPair(filepath.Join(dir, KeysDir, name)); err != nil {
			return fmt.Errorf("created %s/%s is invalid: %w", KeysDir, name, err)
		}
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	printer.Success("Successfully initialized Tessera workspace!\n")
	printer.Println("\nCreated:")
	printer.Printf("  ✓ %s\n", ConfigFile)
	for _, name := range keyFiles {
		printer.Printf("  ✓ %s/%s\n", KeysDir, name)
	}
	printer.Println("\nNext steps:")
	printer.Printf("  1. Add '%s/' to your .gitignore file\n", KeysDir)
	printer.Println("  2. Bind a session: tessera session bind --root keys/root.json --authority keys/authority.json")
	printer.Println("  3. Create a shard:  tessera shard create 0 0 --key keys/authority.json")
}
