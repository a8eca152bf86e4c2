package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AlexZinkM/pensa-wallet/internal/model"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TokenMetadataProgramID is the Metaplex token metadata program.
var TokenMetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

// Metaplex limits, in bytes. Longer strings mean the account is not a
// metadata record.
const (
	maxNameLen   = 32
	maxSymbolLen = 10
	maxURILen    = 200

	metadataKeyV1 = 4
)

// MetadataAddress returns the metadata PDA of mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			TokenMetadataProgramID.Bytes(),
			mint.Bytes(),
		},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata address: %w", err)
	}
	return addr, nil
}

// TokenMetadata fetches and decodes the on-chain metadata record of mint.
// A missing or malformed record yields model.ErrMetadataUnavailable.
func (c *SolanaClient) TokenMetadata(ctx context.Context, mint solana.PublicKey) (model.TokenMetadata, error) {
	addr, err := MetadataAddress(mint)
	if err != nil {
		return model.TokenMetadata{}, err
	}

	info, err := c.rpcClient.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: rpc.CommitmentConfirmed,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return model.TokenMetadata{}, fmt.Errorf("%w: no metadata account for %s", model.ErrMetadataUnavailable, mint)
		}
		return model.TokenMetadata{}, classify(fmt.Errorf("failed to get metadata account: %w", err))
	}
	if info == nil || info.Value == nil || info.Value.Data == nil {
		return model.TokenMetadata{}, fmt.Errorf("%w: no metadata account for %s", model.ErrMetadataUnavailable, mint)
	}
	if !info.Value.Owner.Equals(TokenMetadataProgramID) {
		return model.TokenMetadata{}, fmt.Errorf("%w: account not owned by the metadata program", model.ErrMetadataUnavailable)
	}

	return DecodeMetadata(info.Value.Data.GetBinary())
}

// DecodeMetadata decodes the fixed prefix of a Metaplex metadata account:
//
//	key u8 | update_authority [32]u8 | mint [32]u8 | name str | symbol str | uri str
//
// where str is a u32 little-endian length followed by that many bytes. The
// program pads strings with NUL bytes, which are trimmed.
func DecodeMetadata(data []byte) (model.TokenMetadata, error) {
	dec := bin.NewBorshDecoder(data)

	key, err := dec.ReadUint8()
	if err != nil {
		return model.TokenMetadata{}, metadataErr("key", err)
	}
	if key != metadataKeyV1 {
		return model.TokenMetadata{}, fmt.Errorf("%w: unexpected account key %d", model.ErrMetadataUnavailable, key)
	}

	authority, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return model.TokenMetadata{}, metadataErr("update authority", err)
	}
	mint, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return model.TokenMetadata{}, metadataErr("mint", err)
	}

	name, err := readString(dec, "name", maxNameLen)
	if err != nil {
		return model.TokenMetadata{}, err
	}
	symbol, err := readString(dec, "symbol", maxSymbolLen)
	if err != nil {
		return model.TokenMetadata{}, err
	}
	uri, err := readString(dec, "uri", maxURILen)
	if err != nil {
		return model.TokenMetadata{}, err
	}

	return model.TokenMetadata{
		Mint:            solana.PublicKeyFromBytes(mint).String(),
		UpdateAuthority: solana.PublicKeyFromBytes(authority).String(),
		Name:            name,
		Symbol:          symbol,
		URI:             uri,
	}, nil
}

func readString(dec *bin.Decoder, field string, limit int) (string, error) {
	n, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return "", metadataErr(field, err)
	}
	if int(n) > limit {
		return "", fmt.Errorf("%w: %s length %d exceeds %d", model.ErrMetadataUnavailable, field, n, limit)
	}
	raw, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", metadataErr(field, err)
	}
	return strings.TrimRight(string(raw), "\x00"), nil
}

func metadataErr(field string, err error) error {
	return fmt.Errorf("%w: failed to read %s: %v", model.ErrMetadataUnavailable, field, err)
}
