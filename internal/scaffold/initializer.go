// Package scaffold writes a starter tally.yml and inventory seed into the
// current directory.
package scaffold

import (
	"embed"
	"fmt"
	"io"
	"os"

	"github.com/dyluth/tally/internal/config"
	"github.com/dyluth/tally/internal/inventory"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	// ConfigFile is the configuration file written by Initialize
	ConfigFile = config.DefaultPath

	// SeedFile is the inventory seed written by Initialize
	SeedFile = "inventory.yml"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates tally.yml and inventory.yml.
// If force is true, existing copies are removed first.
func Initialize(force bool, w io.Writer) error {
	if force {
		if err := handleForce(w); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := writeFiles(files); err != nil {
		return err
	}

	return validateCreatedFiles()
}

// handleForce removes existing files if --force was specified
func handleForce(w io.Writer) error {
	for _, path := range []string{ConfigFile, SeedFile} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		fmt.Fprintf(w, "⚠️  Removing existing %s...\n", path)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

func getTemplateFiles() ([]FileInfo, error) {
	templates := []struct {
		name string
		path string
	}{
		{"templates/tally.yml.tmpl", ConfigFile},
		{"templates/inventory.yml.tmpl", SeedFile},
	}

	files := make([]FileInfo, 0, len(templates))
	for _, tmpl := range templates {
		content, err := templatesFS.ReadFile(tmpl.name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", tmpl.path, err)
		}
		files = append(files, FileInfo{Path: tmpl.path, Content: content, Permissions: 0644})
	}
	return files, nil
}

func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}
	return nil
}

// validateCreatedFiles loads both files the way serve does
func validateCreatedFiles() error {
	if _, err := config.Load(ConfigFile); err != nil {
		return fmt.Errorf("created %s is not valid: %w", ConfigFile, err)
	}
	if _, err := inventory.NewRepository().LoadSeed(SeedFile); err != nil {
		return fmt.Errorf("created %s is not valid: %w", SeedFile, err)
	}
	return nil
}

// PrintSuccess prints the created files and next steps
func PrintSuccess(w io.Writer) {
	fmt.Fprintln(w, "\n✅ Successfully initialized tally!")
	fmt.Fprintln(w, "\nCreated:")
	fmt.Fprintf(w, "  ✓ %s\n", ConfigFile)
	fmt.Fprintf(w, "  ✓ %s\n", SeedFile)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintf(w, "  1. Edit the permissions block in %s to list your actors\n", ConfigFile)
	fmt.Fprintf(w, "  2. Replace %s with your warehouse inventory\n", SeedFile)
	fmt.Fprintln(w, "  3. Run 'tally serve' to start the fulfillment API")
}
