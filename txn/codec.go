package txn

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/types"
)

// envelope is the flat wire form shared by every variant. Monetary fields
// ride as canonical micro-unit strings, never floats.
type envelope struct {
	Type        Kind              `json:"type"`
	Timestamp   time.Time         `json:"timestamp"`
	Amount      *types.Money      `json:"amount,omitempty"`
	ActorID     string            `json:"actor_id,omitempty"`
	WorkspaceID string            `json:"workspace_id,omitempty"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
	Description string            `json:"description,omitempty"`
	VoucherID   string            `json:"voucher_id,omitempty"`
	GeneratedBy string            `json:"generated_by,omitempty"`
	Vendor      *Vendor           `json:"vendor,omitempty"`
	Payer       string            `json:"payer,omitempty"`
	Usage       *Usage            `json:"usage,omitempty"`
	Identifier  string            `json:"identifier,omitempty"`
	ContractID  string            `json:"contract_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func amountPtr(m types.Money) *types.Money { return &m }

func idString(v id.ID) string { return v.String() }

func parseID(s string) (id.ID, error) {
	if s == "" {
		return id.Nil, nil
	}
	return id.ParseAny(s)
}

// Marshal encodes a transaction into its flat JSON wire form.
func Marshal(t Transaction) ([]byte, error) {
	env := envelope{Type: t.Kind(), Timestamp: t.CreatedAt()}

	switch v := t.(type) {
	case CashIn:
		env.Amount = amountPtr(v.Amount)
		env.ActorID = idString(v.ActorID)
	case CashOut:
		env.Amount = amountPtr(v.Amount)
		env.ActorID = idString(v.ActorID)
	case WorkspaceCashIn:
		env.Amount = amountPtr(v.Amount)
		env.WorkspaceID = idString(v.WorkspaceID)
	case Wiretransfer:
		env.Amount = amountPtr(v.Amount)
		env.From = idString(v.From)
		env.To = idString(v.To)
		env.Description = v.Description
	case Generation:
		fillGeneration(&env, v.GenerationPayload)
	case AgentGeneration:
		fillGeneration(&env, v.GenerationPayload)
	case LLMGeneration:
		fillGeneration(&env, v.GenerationPayload)
	case WorkspaceCreateVoucher:
		env.Amount = amountPtr(v.Amount)
		env.VoucherID = v.VoucherID
		env.WorkspaceID = idString(v.WorkspaceID)
	case WorkspaceRedeemVoucher:
		env.Amount = amountPtr(v.Amount)
		env.VoucherID = v.VoucherID
		env.WorkspaceID = idString(v.WorkspaceID)
	case PreAuthorization:
		env.Amount = amountPtr(v.Amount)
		env.Payer = idString(v.Payer)
		env.Identifier = idString(v.Identifier)
		env.Metadata = v.Metadata
	case CommitPreAuthorized:
		env.Identifier = idString(v.Identifier)
		env.ContractID = v.ContractID
		env.Amount = v.Amount
		vendor := v.Vendor
		env.Vendor = &vendor
		env.Metadata = v.Metadata
	default:
		return nil, fmt.Errorf("txn: marshal: unhandled variant %T", t)
	}

	return json.Marshal(env)
}

func fillGeneration(env *envelope, p GenerationPayload) {
	env.GeneratedBy = idString(p.GeneratedBy)
	vendor := p.Vendor
	env.Vendor = &vendor
	env.Payer = idString(p.Payer)
	usage := p.Usage
	env.Usage = &usage
	env.Metadata = p.Metadata
}

// Unmarshal decodes a flat JSON wire form back into a transaction
// variant. Unknown types are rejected.
func Unmarshal(data []byte) (Transaction, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("txn: unmarshal: %w", err)
	}

	header := Header{Timestamp: env.Timestamp}

	switch env.Type {
	case KindCashIn:
		actor, err := parseID(env.ActorID)
		if err != nil {
			return nil, err
		}
		return CashIn{Header: header, Amount: requireAmount(env.Amount), ActorID: actor}, nil
	case KindCashOut:
		actor, err := parseID(env.ActorID)
		if err != nil {
			return nil, err
		}
		return CashOut{Header: header, Amount: requireAmount(env.Amount), ActorID: actor}, nil
	case KindWorkspaceCashIn:
		ws, err := parseID(env.WorkspaceID)
		if err != nil {
			return nil, err
		}
		return WorkspaceCashIn{Header: header, Amount: requireAmount(env.Amount), WorkspaceID: ws}, nil
	case KindWiretransfer:
		from, err := parseID(env.From)
		if err != nil {
			return nil, err
		}
		to, err := parseID(env.To)
		if err != nil {
			return nil, err
		}
		return Wiretransfer{
			Header:      header,
			Amount:      requireAmount(env.Amount),
			From:        from,
			To:          to,
			Description: env.Description,
		}, nil
	case KindGeneration:
		p, err := generationPayload(env)
		if err != nil {
			return nil, err
		}
		return Generation{Header: header, GenerationPayload: p}, nil
	case KindAgentGeneration:
		p, err := generationPayload(env)
		if err != nil {
			return nil, err
		}
		return AgentGeneration{Header: header, GenerationPayload: p}, nil
	case KindLLMGeneration:
		p, err := generationPayload(env)
		if err != nil {
			return nil, err
		}
		return LLMGeneration{Header: header, GenerationPayload: p}, nil
	case KindWorkspaceCreateVoucher:
		ws, err := parseID(env.WorkspaceID)
		if err != nil {
			return nil, err
		}
		return WorkspaceCreateVoucher{
			Header:      header,
			Amount:      requireAmount(env.Amount),
			VoucherID:   env.VoucherID,
			WorkspaceID: ws,
		}, nil
	case KindWorkspaceRedeemVoucher:
		ws, err := parseID(env.WorkspaceID)
		if err != nil {
			return nil, err
		}
		return WorkspaceRedeemVoucher{
			Header:      header,
			Amount:      requireAmount(env.Amount),
			VoucherID:   env.VoucherID,
			WorkspaceID: ws,
		}, nil
	case KindPreAuthorization:
		payer, err := parseID(env.Payer)
		if err != nil {
			return nil, err
		}
		identifier, err := parseID(env.Identifier)
		if err != nil {
			return nil, err
		}
		return PreAuthorization{
			Header:     header,
			Amount:     requireAmount(env.Amount),
			Payer:      payer,
			Identifier: identifier,
			Metadata:   env.Metadata,
		}, nil
	case KindCommitPreAuthorized:
		identifier, err := parseID(env.Identifier)
		if err != nil {
			return nil, err
		}
		commit := CommitPreAuthorized{
			Header:     header,
			Identifier: identifier,
			ContractID: env.ContractID,
			Amount:     env.Amount,
			Metadata:   env.Metadata,
		}
		if env.Vendor != nil {
			commit.Vendor = *env.Vendor
		}
		return commit, nil
	default:
		return nil, fmt.Errorf("txn: unmarshal: unknown type %q", env.Type)
	}
}

func requireAmount(m *types.Money) types.Money {
	if m == nil {
		return types.Zero()
	}
	return *m
}

func generationPayload(env envelope) (GenerationPayload, error) {
	generatedBy, err := parseID(env.GeneratedBy)
	if err != nil {
		return GenerationPayload{}, err
	}
	payer, err := parseID(env.Payer)
	if err != nil {
		return GenerationPayload{}, err
	}

	p := GenerationPayload{
		GeneratedBy: generatedBy,
		Payer:       payer,
		Metadata:    env.Metadata,
	}
	if env.Vendor != nil {
		p.Vendor = *env.Vendor
	}
	if env.Usage != nil {
		p.Usage = *env.Usage
	}
	return p, nil
}
