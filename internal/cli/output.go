// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-securekey.
//
// go-securekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jeremyhahn/go-securekey/pkg/connection"
	"github.com/jeremyhahn/go-securekey/pkg/descriptor"
	"github.com/jeremyhahn/go-securekey/pkg/health"
	"github.com/jeremyhahn/go-securekey/pkg/securekey"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText  OutputFormat = "text"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// ValidOutputFormat reports whether format is supported.
func ValidOutputFormat(format string) bool {
	switch OutputFormat(format) {
	case OutputFormatText, OutputFormatJSON, OutputFormatTable:
		return true
	}
	return false
}

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		out := map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		}
		if kind := securekey.KindOf(err); kind != 0 {
			out["kind"] = kind.String()
		}
		return p.printJSON(out)
	default:
		// Errors are always reported, even for an unknown format.
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	}
}

// PrintExists prints whether the named key exists
func (p *Printer) PrintExists(key string, exists bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"key":    key,
			"exists": exists,
		})
	case OutputFormatTable, OutputFormatText:
		if exists {
			fmt.Fprintf(p.writer, "Key exists: %s\n", key)
		} else {
			fmt.Fprintf(p.writer, "Key does not exist: %s\n", key)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintValid prints the validity of the named key
func (p *Printer) PrintValid(key string, valid bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"key":   key,
			"valid": valid,
		})
	case OutputFormatTable, OutputFormatText:
		if valid {
			fmt.Fprintf(p.writer, "Key is valid: %s\n", key)
		} else {
			fmt.Fprintf(p.writer, "Key is not valid: %s\n", key)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintDescriptor prints an exported key record. A nil descriptor means
// the record was not retrievable.
func (p *Printer) PrintDescriptor(key string, d *descriptor.Descriptor) error {
	if d == nil {
		switch p.format {
		case OutputFormatJSON:
			return p.printJSON(map[string]interface{}{
				"key":   key,
				"found": false,
			})
		case OutputFormatTable, OutputFormatText:
			fmt.Fprintf(p.writer, "No key record for: %s\n", key)
			return nil
		default:
			return fmt.Errorf("unknown output format: %s", p.format)
		}
	}

	thumbprint, _ := d.Thumbprint() // empty when the key type is unsupported
	switch p.format {
	case OutputFormatJSON:
		info := map[string]interface{}{
			"key":        key,
			"found":      true,
			"algorithm":  d.Algorithm,
			"public_key": d.PEM,
			"counter":    d.Counter,
			"uid":        d.UID,
			"thumbprint": thumbprint,
			"signed":     d.Signed(),
		}
		if d.CPUID != "" {
			info["cpu_id"] = d.CPUID
		}
		if d.KeyID != "" {
			info["kid"] = d.KeyID
		}
		if d.Signed() {
			info["signature"] = base64.StdEncoding.EncodeToString(d.Signature)
		}
		return p.printJSON(info)
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-12s %s\n", "FIELD", "VALUE")
		fmt.Fprintln(p.writer, strings.Repeat("-", 60))
		fmt.Fprintf(p.writer, "%-12s %s\n", "key", key)
		fmt.Fprintf(p.writer, "%-12s %s\n", "algorithm", d.Algorithm)
		fmt.Fprintf(p.writer, "%-12s %d\n", "counter", d.Counter)
		fmt.Fprintf(p.writer, "%-12s %d\n", "uid", d.UID)
		fmt.Fprintf(p.writer, "%-12s %s\n", "cpu_id", d.CPUID)
		fmt.Fprintf(p.writer, "%-12s %s\n", "thumbprint", thumbprint)
		fmt.Fprintf(p.writer, "%-12s %t\n", "signed", d.Signed())
		return nil
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Key Record: %s\n", key)
		fmt.Fprintf(p.writer, "  Algorithm:  %s\n", d.Algorithm)
		fmt.Fprintf(p.writer, "  Counter:    %d\n", d.Counter)
		fmt.Fprintf(p.writer, "  UID:        %d\n", d.UID)
		if d.CPUID != "" {
			fmt.Fprintf(p.writer, "  CPU ID:     %s\n", d.CPUID)
		}
		if d.KeyID != "" {
			fmt.Fprintf(p.writer, "  Key ID:     %s\n", d.KeyID)
		}
		fmt.Fprintf(p.writer, "  Thumbprint: %s\n", thumbprint)
		fmt.Fprintf(p.writer, "  Signed:     %t\n", d.Signed())
		fmt.Fprintln(p.writer, "\nPublic Key PEM:")
		fmt.Fprint(p.writer, d.PEM)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSignSession prints an open sign session
func (p *Printer) PrintSignSession(s *securekey.SignSession) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"session":   s.ID,
			"challenge": s.Challenge,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Sign session: %d\n", s.ID)
		fmt.Fprintf(p.writer, "Challenge:    %s\n", s.Challenge)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSignature prints a signature (base64 encoded)
func (p *Printer) PrintSignature(signature []byte) error {
	encoded := base64.StdEncoding.EncodeToString(signature)
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"signature": encoded,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintln(p.writer, encoded)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintServiceVersion prints the version reported by the service
func (p *Printer) PrintServiceVersion(v int) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"service_version": v,
		})
	case OutputFormatTable, OutputFormatText:
		fmt.Fprintf(p.writer, "Service version: %d\n", v)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintStatus prints the client health report and connection statistics
func (p *Printer) PrintStatus(socket string, report health.Report, stats connection.Stats) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"socket":     socket,
			"status":     report.Status,
			"checks":     report.Checks,
			"connection": stats,
		})
	case OutputFormatTable:
		fmt.Fprintf(p.writer, "%-12s %-10s %s\n", "CHECK", "STATUS", "MESSAGE")
		fmt.Fprintln(p.writer, strings.Repeat("-", 60))
		for _, c := range report.Checks {
			fmt.Fprintf(p.writer, "%-12s %-10s %s\n", c.Name, c.Status, checkMessage(c))
		}
		return nil
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Socket: %s\n", socket)
		fmt.Fprintf(p.writer, "Status: %s\n", report.Status)
		for _, c := range report.Checks {
			fmt.Fprintf(p.writer, "  - %s: %s (%s)\n", c.Name, c.Status, checkMessage(c))
		}
		fmt.Fprintf(p.writer, "Connection: %s, attempts %d, deaths %d\n",
			stats.State, stats.Attempts, stats.Deaths)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

func checkMessage(c health.CheckResult) string {
	if c.Error != "" {
		return c.Error
	}
	return c.Message
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
