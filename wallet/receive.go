package wallet

import (
	"encoding/base64"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// ReceiveQR returns a base64 PNG QR code of address.
func ReceiveQR(address string) (string, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return "", fmt.Errorf("invalid Solana address: %w", err)
	}

	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	png, err := qr.PNG(qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// ReceiveText renders the QR code of address for a terminal.
func ReceiveText(address string) (string, error) {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return "", fmt.Errorf("invalid Solana address: %w", err)
	}

	qr, err := qrcode.New(address, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	return qr.ToString(false), nil
}
