package games

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
)

//go:embed plinko_tables.json
var plinkoTablesJSON []byte

var plinkoPayoutTables = loadPlinkoTables(plinkoTablesJSON, plinkoEdge)

// loadPlinkoTables parses the bucket shapes and scales each table so the
// binomial expectation over its buckets equals edge.
func loadPlinkoTables(data []byte, edge float64) map[string]map[int][]float64 {
	raw := map[string]map[string][]float64{}
	if err := json.Unmarshal(data, &raw); err != nil {
		panic(fmt.Sprintf("failed to parse plinko payout tables: %v", err))
	}

	result := make(map[string]map[int][]float64, len(raw))
	for risk, rows := range raw {
		if risk == "" {
			panic("encountered empty risk key in plinko tables")
		}

		result[risk] = make(map[int][]float64, len(rows))
		for rowsKey, shape := range rows {
			rowCount, err := strconv.Atoi(rowsKey)
			if err != nil {
				panic(fmt.Sprintf("invalid row key %q for risk %q: %v", rowsKey, risk, err))
			}

			expectedLength := rowCount + 1
			if len(shape) != expectedLength {
				panic(fmt.Sprintf("plinko table mismatch for risk %q rows %d: expected %d entries, got %d", risk, rowCount, expectedLength, len(shape)))
			}

			ev := plinkoExpectation(shape)
			if ev <= 0 {
				panic(fmt.Sprintf("plinko table for risk %q rows %d has no payout", risk, rowCount))
			}
			scale := edge / ev
			table := make([]float64, expectedLength)
			for i, m := range shape {
				table[i] = m * scale
			}
			result[risk][rowCount] = table
		}
	}

	return result
}

// plinkoExpectation weights each bucket by C(rows, k) / 2^rows.
func plinkoExpectation(table []float64) float64 {
	rows := len(table) - 1
	total := 0.0
	coeff := 1.0
	for k, m := range table {
		if k > 0 {
			coeff = coeff * float64(rows-k+1) / float64(k)
		}
		total += coeff * m
	}
	for i := 0; i < rows; i++ {
		total /= 2
	}
	return total
}

func plinkoTable(risk string, rows int) ([]float64, error) {
	riskTables, ok := plinkoPayoutTables[risk]
	if !ok {
		return nil, invalidParams("unknown plinko risk: %s", risk)
	}

	table, ok := riskTables[rows]
	if !ok {
		return nil, invalidParams("no payout table for risk %s rows %d", risk, rows)
	}

	return table, nil
}
