package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/prodshot/internal/batch"
	"github.com/MeKo-Tech/prodshot/internal/testutil"
	"github.com/cucumber/godog"
)

// aPhotoSessionWithTwoItems writes the synthetic two-item session.
func (testCtx *TestContext) aPhotoSessionWithTwoItems() error {
	dir := filepath.Join(testCtx.TempDir, "session")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := testutil.WriteSessionFiles(dir); err != nil {
		return fmt.Errorf("failed to write session photos: %w", err)
	}
	testCtx.SessionDir = dir
	return nil
}

func (testCtx *TestContext) anEmptyPhotoDirectory() error {
	dir := filepath.Join(testCtx.TempDir, "empty")
	testCtx.SessionDir = dir
	return os.MkdirAll(dir, 0o755)
}

// anOverridesFile writes a docstring to {tmp}/<name>.
func (testCtx *TestContext) anOverridesFile(name string, body *godog.DocString) error {
	return os.WriteFile(filepath.Join(testCtx.TempDir, name), []byte(body.Content), 0o600)
}

func (testCtx *TestContext) theOutputDirectoryShouldContainImages(n int) error {
	entries, err := os.ReadDir(testCtx.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to read output directory: %w", err)
	}
	var images []string
	for _, e := range entries {
		if ext := filepath.Ext(e.Name()); ext == ".jpg" || ext == ".png" {
			images = append(images, e.Name())
		}
	}
	if len(images) != n {
		return fmt.Errorf("expected %d images, found %d: %s", n, len(images), strings.Join(images, ", "))
	}
	return nil
}

func (testCtx *TestContext) noOutputDirectoryShouldExist() error {
	if _, err := os.Stat(testCtx.OutputDir); !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("output directory %s exists", testCtx.OutputDir)
	}
	return nil
}

func (testCtx *TestContext) readMapping() ([]batch.MappingRecord, error) {
	return batch.ReadMapping(filepath.Join(testCtx.OutputDir, batch.DefaultMappingFile))
}

func (testCtx *TestContext) theMappingFileShouldListItems(n int) error {
	records, err := testCtx.readMapping()
	if err != nil {
		return fmt.Errorf("failed to read mapping: %w", err)
	}
	if len(records) != n {
		return fmt.Errorf("mapping lists %d items, want %d", len(records), n)
	}
	return nil
}

// itemShouldUseAs checks the source photo of one side of an item.
func (testCtx *TestContext) itemShouldUseAs(item int, source, role string) error {
	records, err := testCtx.readMapping()
	if err != nil {
		return fmt.Errorf("failed to read mapping: %w", err)
	}
	for _, r := range records {
		if r.ItemIndex != item {
			continue
		}
		got := r.FrontSource
		if role == "back" {
			got = r.BackSource
		}
		if got != source {
			return fmt.Errorf("item %d %s is %q, want %q", item, role, got, source)
		}
		return nil
	}
	return fmt.Errorf("item %d not in mapping", item)
}

func (testCtx *TestContext) iRememberTheOutputModificationTimes() error {
	entries, err := os.ReadDir(testCtx.OutputDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return err
		}
		testCtx.ModTimes[e.Name()] = info.ModTime()
	}
	return nil
}

// theOutputImagesShouldBeUnchanged compares the images against the times
// remembered earlier. The mapping file is rewritten on every run.
func (testCtx *TestContext) theOutputImagesShouldBeUnchanged() error {
	for name, before := range testCtx.ModTimes {
		if name == batch.DefaultMappingFile || strings.HasPrefix(name, ".") {
			continue
		}
		info, err := os.Stat(filepath.Join(testCtx.OutputDir, name))
		if err != nil {
			return err
		}
		if !info.ModTime().Equal(before) {
			return fmt.Errorf("%s was rewritten", name)
		}
	}
	return nil
}

func (testCtx *TestContext) iDeleteTheOutput(name string) error {
	return os.Remove(filepath.Join(testCtx.OutputDir, name))
}

// RegisterSessionSteps registers fixture and catalog assertions.
func (testCtx *TestContext) RegisterSessionSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a photo session with two items$`, testCtx.aPhotoSessionWithTwoItems)
	sc.Step(`^an empty photo directory$`, testCtx.anEmptyPhotoDirectory)
	sc.Step(`^an overrides file "([^"]*)":$`, testCtx.anOverridesFile)
	sc.Step(`^the output directory should contain (\d+) images$`, testCtx.theOutputDirectoryShouldContainImages)
	sc.Step(`^no output directory should exist$`, testCtx.noOutputDirectoryShouldExist)
	sc.Step(`^the mapping file should list (\d+) items$`, testCtx.theMappingFileShouldListItems)
	sc.Step(`^item (\d+) should use "([^"]*)" as (front|back)$`, testCtx.itemShouldUseAs)
	sc.Step(`^I remember the output modification times$`, testCtx.iRememberTheOutputModificationTimes)
	sc.Step(`^the output images should be unchanged$`, testCtx.theOutputImagesShouldBeUnchanged)
	sc.Step(`^I delete the output "([^"]*)"$`, testCtx.iDeleteTheOutput)
}
