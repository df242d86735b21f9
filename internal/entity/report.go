package entity

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// ReportSnapshot renders the node status, momentum matrix and consensus tables
// of a snapshot into a single string, ready to be logged or printed.
func ReportSnapshot(snap *Snapshot) string {
	var (
		buffer = new(bytes.Buffer)
		stats  = bufio.NewWriter(buffer)
	)
	fmt.Fprintf(stats, "Snapshot taken: %v\n", snap.Time.Format(time.RFC3339))
	fmt.Fprintf(stats, "Connected:      %d/%d\n", snap.Connected(), len(snap.Nodes))
	fmt.Fprintf(stats, "\n")

	ReportNodes(stats, snap)
	ReportMomentumMatrix(stats, snap)
	ReportConsensus(stats, snap)

	stats.Flush()
	return buffer.String()
}

// ReportNodes creates a table with the connection status and chain head of
// every monitored node.
func ReportNodes(w io.Writer, snap *Snapshot) {
	fmt.Fprintf(w, "Nodes:\n")

	rows := make([][]string, 0, len(snap.Nodes))
	for i, node := range snap.Nodes {
		status := "connected"
		if !node.IsConnected {
			status = "disconnected"
		}
		height, hash, age := "-", "-", "-"
		if head, ok := node.Head(); ok {
			height = strconv.FormatUint(head.Height, 10)
			hash = head.Hash.TerminalString()
			age = snap.Time.Sub(head.Timestamp).Round(time.Second).String()
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), node.Identity.Name, node.Identity.Endpoint, status, height, hash, age, node.LastError})
	}
	table := newTable(w)
	table.SetHeader([]string{"#", "Name", "Endpoint", "Status", "Height", "Hash", "Age", "Error"})
	table.AppendBulk(rows)
	table.Render()

	fmt.Fprintf(w, "\n")
}

// ReportMomentumMatrix creates a height by node matrix showing which node saw
// which hash at each retained height. Stale records are marked with a '*'.
func ReportMomentumMatrix(w io.Writer, snap *Snapshot) {
	seen := make(map[uint64]struct{})
	for _, node := range snap.Nodes {
		for _, rec := range node.History {
			seen[rec.Height] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return
	}
	heights := make([]uint64, 0, len(seen))
	for height := range seen {
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] > heights[j] })

	fmt.Fprintf(w, "Momentum matrix:\n")

	header := []string{"Height"}
	for _, node := range snap.Nodes {
		header = append(header, node.Identity.Name)
	}
	matrix := make([][]string, 0, len(heights))
	for _, height := range heights {
		row := []string{strconv.FormatUint(height, 10)}
		for _, node := range snap.Nodes {
			rec, ok := node.Lookup(height)
			switch {
			case !ok:
				row = append(row, "-")
			case rec.IsStale:
				row = append(row, rec.Hash.String()[:8]+"*")
			default:
				row = append(row, rec.Hash.String()[:8])
			}
		}
		matrix = append(matrix, row)
	}
	table := newTable(w)
	table.SetHeader(header)
	table.AppendBulk(matrix)
	table.Render()

	fmt.Fprintf(w, "\n")
}

// ReportConsensus creates a table of the consensus verdicts, most recent
// height first.
func ReportConsensus(w io.Writer, snap *Snapshot) {
	fmt.Fprintf(w, "Consensus:\n")
	if len(snap.Consensus) == 0 {
		fmt.Fprintf(w, "  not enough connected nodes to compare\n\n")
		return
	}
	rows := make([][]string, 0, len(snap.Consensus))
	for _, entry := range snap.Consensus {
		verdict := "partial"
		switch {
		case entry.Forked():
			verdict = "FORK"
		case entry.AllConnectedReportIt:
			verdict = "agreed"
		}
		hashes := make([]string, 0, len(entry.Hashes))
		for _, hash := range entry.Hashes {
			hashes = append(hashes, hash.TerminalString())
		}
		rows = append(rows, []string{strconv.FormatUint(entry.Height, 10), fmt.Sprintf("%d/%d", entry.Reporters, snap.Connected()), verdict, strings.Join(hashes, " ")})
	}
	table := newTable(w)
	table.SetHeader([]string{"Height", "Reporters", "Verdict", "Hashes"})
	table.AppendBulk(rows)
	table.Render()

	fmt.Fprintf(w, "\n")
}

func newTable(w io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	return table
}
