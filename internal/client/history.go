package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/AlexZinkM/pensa-wallet/internal/common"
	"github.com/AlexZinkM/pensa-wallet/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SignaturesFor gets the latest limit signatures that touched address,
// newest first.
func (c *SolanaClient) SignaturesFor(ctx context.Context, address solana.PublicKey, limit int) ([]solana.Signature, error) {
	sigs, err := c.rpcClient.GetSignaturesForAddressWithOpts(ctx, address, &rpc.GetSignaturesForAddressOpts{
		Limit:      &limit,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get signatures: %w", err))
	}

	out := make([]solana.Signature, 0, len(sigs))
	for _, s := range sigs {
		out = append(out, s.Signature)
	}
	return out, nil
}

// Transfer gets transaction sig and extracts the token or SOL movement of
// owner. It returns nil when the transaction moved neither, apart from fees.
func (c *SolanaClient) Transfer(ctx context.Context, sig solana.Signature, owner solana.PublicKey, token model.Asset) (*model.Transaction, error) {
	mint, err := solana.PublicKeyFromBase58(token.Mint)
	if err != nil {
		return nil, fmt.Errorf("invalid token mint: %w", err)
	}

	// Version 0 is the newest the library decodes
	maxVersion := uint64(0)
	tx, err := c.rpcClient.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentConfirmed,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to get transaction %s: %w", sig, err))
	}

	return parseTransfer(tx, sig, owner, mint, token), nil
}

// parseTransfer extracts the transfer of owner from tx. If the token moved,
// any SOL change is the fee. Otherwise a SOL change beyond the fee is a
// transfer.
func parseTransfer(tx *rpc.GetTransactionResult, sig solana.Signature, owner, mint solana.PublicKey, token model.Asset) *model.Transaction {
	if tx == nil || tx.Meta == nil {
		return nil
	}
	ownerStr := owner.String()

	var timestamp time.Time
	if tx.BlockTime != nil {
		timestamp = time.Unix(int64(*tx.BlockTime), 0).UTC()
	}

	status := "success"
	if tx.Meta.Err != nil {
		status = "failed"
	}

	// --- Owner's SOL delta ---
	var accountKeys solana.PublicKeySlice
	if tx.Transaction != nil {
		if decoded, err := tx.Transaction.GetTransaction(); err == nil {
			accountKeys = decoded.Message.AccountKeys
		}
	}
	ownerIndex := -1
	for i, key := range accountKeys {
		if key.Equals(owner) {
			ownerIndex = i
			break
		}
	}
	ownerSOLDelta := solDelta(tx.Meta, ownerIndex)

	// --- Token transfers ---
	tokenDeltas := make(map[string]int64)
	for _, pre := range tx.Meta.PreTokenBalances {
		if pre.Mint.Equals(mint) && pre.Owner != nil && pre.UiTokenAmount != nil {
			amt, _ := strconv.ParseUint(pre.UiTokenAmount.Amount, 10, 64)
			tokenDeltas[pre.Owner.String()] -= int64(amt)
		}
	}
	for _, post := range tx.Meta.PostTokenBalances {
		if post.Mint.Equals(mint) && post.Owner != nil && post.UiTokenAmount != nil {
			amt, _ := strconv.ParseUint(post.UiTokenAmount.Amount, 10, 64)
			tokenDeltas[post.Owner.String()] += int64(amt)
		}
	}

	if ourDelta := tokenDeltas[ownerStr]; ourDelta != 0 {
		t := &model.Transaction{
			TxID:      sig.String(),
			Currency:  token.Symbol,
			FeeSOL:    "0",
			Timestamp: timestamp,
			Slot:      tx.Slot,
			Status:    status,
		}
		if ourDelta > 0 {
			t.Type = model.TransactionTypeReceived
			t.Amount = common.FormatUnits(uint64(ourDelta), token.Decimals)
			t.To = ownerStr
			t.From = counterparty(tokenDeltas, ownerStr, -1)
		} else {
			t.Type = model.TransactionTypeSent
			t.Amount = common.FormatUnits(uint64(-ourDelta), token.Decimals)
			t.From = ownerStr
			t.To = counterparty(tokenDeltas, ownerStr, 1)
			// Fee = total SOL cost we paid, including rent for new accounts
			if ownerSOLDelta < 0 {
				t.FeeSOL = common.LamportsToSOL(uint64(-ownerSOLDelta))
			}
		}
		return t
	}

	// --- No token movement, check for SOL transfer ---
	if ownerSOLDelta == 0 || ownerIndex < 0 {
		return nil
	}

	// Fee payer is index 0
	isFeePayer := ownerIndex == 0
	actual := ownerSOLDelta
	if isFeePayer {
		actual += int64(tx.Meta.Fee)
	}
	if actual == 0 {
		return nil
	}

	t := &model.Transaction{
		TxID:      sig.String(),
		Currency:  model.SOL.Symbol,
		FeeSOL:    "0",
		Timestamp: timestamp,
		Slot:      tx.Slot,
		Status:    status,
	}
	if actual > 0 {
		t.Type = model.TransactionTypeReceived
		t.Amount = common.LamportsToSOL(uint64(actual))
		t.To = ownerStr
		for i, key := range accountKeys {
			if d := solDelta(tx.Meta, i); d < 0 && !key.Equals(owner) {
				t.From = key.String()
				break
			}
		}
	} else {
		t.Type = model.TransactionTypeSent
		t.Amount = common.LamportsToSOL(uint64(-actual))
		t.From = ownerStr
		for i, key := range accountKeys {
			if d := solDelta(tx.Meta, i); d > 0 && !key.Equals(owner) {
				t.To = key.String()
				break
			}
		}
		if isFeePayer {
			t.FeeSOL = common.LamportsToSOL(tx.Meta.Fee)
		}
	}
	return t
}

// solDelta is the lamport change of account i, 0 when unknown.
func solDelta(meta *rpc.TransactionMeta, i int) int64 {
	if i < 0 || i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
		return 0
	}
	pre, post := meta.PreBalances[i], meta.PostBalances[i]
	if post >= pre {
		return int64(post - pre)
	}
	return -int64(pre - post)
}

// counterparty returns an owner other than self whose delta has sign.
// Ties are broken by address so the result is stable.
func counterparty(deltas map[string]int64, self string, sign int) string {
	best := ""
	for owner, d := range deltas {
		if owner == self || (sign > 0 && d <= 0) || (sign < 0 && d >= 0) {
			continue
		}
		if best == "" || owner < best {
			best = owner
		}
	}
	return best
}
