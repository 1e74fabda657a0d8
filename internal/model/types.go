package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}

// TransactionRecord reports a submitted transaction back to the caller. It is
// created after submission returns and never mutated.
type TransactionRecord struct {
	Hash    string   `json:"hash"`
	From    string   `json:"from"`
	To      string   `json:"to"`
	Value   string   `json:"value"`
	Data    string   `json:"data,omitempty"`
	ChainID int64    `json:"chain_id,omitempty"`
	Status  string   `json:"status,omitempty"`
	Logs    int      `json:"logs,omitempty"`
	Topics  []string `json:"topics,omitempty"`
}

type WalletStatus struct {
	Address string `json:"address"`
	Chain   string `json:"chain"`
	ChainID int64  `json:"chain_id"`
	Balance string `json:"balance,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
}

type ChainInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	ChainID     int64  `json:"chain_id"`
	Symbol      string `json:"symbol"`
	RPCURL      string `json:"rpc_url"`
	Current     bool   `json:"current"`
}

type ActionInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Examples    []string `json:"examples,omitempty"`
}

type GovernanceStatus struct {
	ProposalID    string `json:"proposal_id"`
	State         string `json:"state"`
	AgainstVotes  string `json:"against_votes"`
	ForVotes      string `json:"for_votes"`
	AbstainVotes  string `json:"abstain_votes"`
	Snapshot      string `json:"snapshot,omitempty"`
	Deadline      string `json:"deadline,omitempty"`
	Eta           string `json:"eta,omitempty"`
	OperationID   string `json:"operation_id,omitempty"`
	OperationNote string `json:"operation_note,omitempty"`
}

type PortfolioPosition struct {
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name,omitempty"`
	Chain    string  `json:"chain,omitempty"`
	Quantity string  `json:"quantity"`
	ValueUSD float64 `json:"value_usd"`
}

type Portfolio struct {
	Address   string              `json:"address"`
	TotalUSD  float64             `json:"total_usd"`
	Positions []PortfolioPosition `json:"positions,omitempty"`
	FetchedAt string              `json:"fetched_at"`
}
