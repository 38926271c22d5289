// Package output renders result tables.
//
// Formats:
//
//   - jsonl: one JSON object per record
//   - json: a single indented JSON array
//   - csv: header row plus one row per record
//   - table: ASCII grid
//   - pretty: box-drawing grid
//   - markdown: GitHub-flavored markdown table
//
// Every formatter keeps the field order of the records: JSON objects list
// fields in record order and tabular formats use the first-seen order of
// fields across the whole table.
//
//	f, err := output.New("csv", os.Stdout)
//	if err != nil {
//	    return err
//	}
//	return f.Format(result)
//
// Dates are written as RFC 3339 text. CSV cells that start with =, +, -,
// @, |, tab or a line break are prefixed with a single quote so
// spreadsheets do not evaluate them.
package output
