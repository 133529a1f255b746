package export

const (
	settlementsSheet = "SETTLEMENTS"
	fundsSheet       = "FUNDS"
)

// Columns: Date | Fund | Batch | Source | Fee | Settlement | Payer | Payee | Shares
var settlementHeader = []any{"Date", "Fund", "Batch", "Source", "Fee", "Settlement", "Payer", "Payee", "Shares"}

// Columns: Date | Fund | Denomination | GAV | Shares | Share Price | Valid
var fundHeader = []any{"Date", "Fund", "Denomination", "GAV", "Shares", "Share Price", "Valid"}

const dateLayout = "02.01.2006 15:04"

func settlementValues(rows []SettlementRow) [][]any {
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, []any{
			r.At.Format(dateLayout),
			string(r.FundID),
			r.BatchID,
			r.Source,
			string(r.FeeType),
			r.Settlement.String(),
			r.Payer,
			r.Payee,
			toFloat(r.Shares),
		})
	}
	return data
}

func fundValues(rows []FundRow) [][]any {
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		valid := 0
		if r.Valid {
			valid = 1
		}
		data = append(data, []any{
			r.At.Format(dateLayout),
			string(r.FundID),
			string(r.Denomination),
			toFloat(r.GAV),
			toFloat(r.SharesSupply),
			toFloat(r.SharePrice),
			valid,
		})
	}
	return data
}
