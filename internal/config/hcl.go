package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// GenerateHCL renders cfg as an HCL document.
func GenerateHCL(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	body := f.Body()

	body.SetAttributeValue("schema_version", cty.StringVal(cfg.SchemaVersion))
	body.SetAttributeValue("override_mode", cty.StringVal(cfg.OverrideMode))
	body.SetAttributeValue("ttl", cty.StringVal(cfg.TTL))
	body.SetAttributeValue("sweep_interval", cty.StringVal(cfg.SweepInterval))
	body.SetAttributeValue("revert_on_shutdown", cty.BoolVal(cfg.ShouldRevertOnShutdown()))
	if cfg.DryRun {
		body.SetAttributeValue("dry_run", cty.True)
	}

	if cfg.Log != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("log", nil).Body()
		b.SetAttributeValue("level", cty.StringVal(cfg.Log.Level))
		b.SetAttributeValue("json", cty.BoolVal(cfg.Log.JSON))
	}

	if cfg.Store != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("store", nil).Body()
		b.SetAttributeValue("backend", cty.StringVal(cfg.Store.Backend))
		b.SetAttributeValue("path", cty.StringVal(cfg.Store.Path))
		b.SetAttributeValue("maintenance_interval", cty.StringVal(cfg.Store.MaintenanceInterval))
	}

	if cfg.Resource != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("resource", []string{cfg.Resource.Kind}).Body()
		setIfNotEmpty(b, "path", cfg.Resource.Path)
		setIfNotEmpty(b, "key", cfg.Resource.Key)
		setIfNotEmpty(b, "initial", cfg.Resource.Initial)
	}

	if cfg.API != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("api", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(cfg.APIEnabled()))
		b.SetAttributeValue("listen", cty.StringVal(cfg.API.Listen))
		b.SetAttributeValue("allow_pattern", cty.StringVal(cfg.API.AllowPattern))
		b.SetAttributeValue("rate_limit", cty.NumberFloatVal(cfg.API.RateLimit))
		b.SetAttributeValue("rate_burst", cty.NumberIntVal(int64(cfg.API.RateBurst)))
	}

	if cfg.Control != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("control", nil).Body()
		b.SetAttributeValue("socket", cty.StringVal(cfg.Control.Socket))
	}

	if cfg.Audit != nil {
		body.AppendNewline()
		b := body.AppendNewBlock("audit", nil).Body()
		b.SetAttributeValue("enabled", cty.BoolVal(cfg.AuditEnabled()))
		b.SetAttributeValue("path", cty.StringVal(cfg.Audit.Path))
		b.SetAttributeValue("retention", cty.StringVal(cfg.Audit.Retention))
	}

	return hclwrite.Format(f.Bytes())
}

func setIfNotEmpty(body *hclwrite.Body, name, value string) {
	if value != "" {
		body.SetAttributeValue(name, cty.StringVal(value))
	}
}

// FormatHCL canonicalises HCL source. It fails on syntax errors.
func FormatHCL(src []byte) ([]byte, error) {
	if _, diags := hclwrite.ParseConfig(src, "format.hcl", hcl.Pos{Line: 1, Column: 1}); diags.HasErrors() {
		return nil, fmt.Errorf("invalid HCL: %s", diags.Error())
	}
	return hclwrite.Format(src), nil
}

// SaveHCL writes cfg to path, keeping the previous file as path.bak.
func SaveHCL(cfg *Config, path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".bak"); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, GenerateHCL(cfg), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
