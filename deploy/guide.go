package deploy

import (
	"strings"
	"text/template"
)

var guideTmpl = template.Must(template.New("guide").Parse(`# Safe-Save - Backend Integration Guide

## Contract Addresses

Network: {{.Network}}{{if .NetworkMagic}} (testnet magic {{.NetworkMagic}}){{end}}
Deployed: {{.DeploymentDate}}

| validator | address | script hash |
|---|---|---|
{{range .Rows}}| {{.Name}} | {{.Address}} | {{.ScriptHash}} |
{{end}}
The same addresses are saved to:
- ` + "`contract_addresses.txt`" + ` - human-readable format
- ` + "`contract_addresses.env`" + ` - ready to append to the backend ` + "`.env`" + `
- ` + "`deployment_info.json`" + ` - JSON format for programmatic use

## Integration Steps

### 1. Update the backend environment

    cat deployment/contract_addresses.env >> .env

### 2. Configure the indexer

Make sure the ` + "`.env`" + ` has:

    BLOCKFROST_PROJECT_ID=your-project-id
    BLOCKFROST_NETWORK={{.Network}}
    JWT_SECRET=a-long-random-secret

Get a Blockfrost project id from https://blockfrost.io

### 3. Start the services

    go run ./cmd/api -w

The api listens on PORT (3000 by default); -w runs the ledger watcher in the same process.

### 4. Query the contracts

    curl -H "Authorization: Bearer $TOKEN" http://localhost:3000/api/savings/group/total

## Contract Functions

### Savings Contract
- **deposit** - member deposits funds
- **penalize** - reset streak for a missed deposit
- **borrow** - issue a loan from group funds
- **invest** - register an investment

### Loan Contract
- **repayLoan** - repay the loan amount
- **checkLate** - apply the penalty for late payment

### Investment Contract
- **updateProfit** - record the investment profit
- **distribute** - distribute profits to the group

### Rewards Contract
- **mintStreakBadge** - mint the NFT for a 10+ deposit streak
- **mintEarlyRepayBadge** - mint the NFT for an early repayment

### Governance Contract
- **updateRules** - update the system rules (group leader only)
{{if .NetworkMagic}}
## Testing on Testnet

1. Get test ADA from the faucet: https://docs.cardano.org/cardano-testnet/tools/faucet
2. Use a CIP-30 wallet (Eternl, Nami) on the testnet
3. Monitor transactions on https://{{.Network}}.cardanoscan.io

## Production Deployment

Run the deployment again with -network mainnet and update the backend .env with the mainnet addresses.
{{end}}`))

type guideRow struct {
	Name string
	Contract
}

// guide renders the integration guide of info.
func guide(info Info) string {
	data := struct {
		Info
		Rows []guideRow
	}{Info: info}

	for _, v := range Validators {
		if c, ok := info.Contracts[v]; ok {
			data.Rows = append(data.Rows, guideRow{Name: v, Contract: c})
		}
	}

	var b strings.Builder
	if err := guideTmpl.Execute(&b, data); err != nil {
		return "# Safe-Save - Backend Integration Guide\n\n" + err.Error() + "\n"
	}

	return b.String()
}
