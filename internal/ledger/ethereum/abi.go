package ethereum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Contract method and event names of the deployed CertificateSystem registry.
const (
	methodCount       = "getCertificateCount"
	methodCertificate = "certificates"
	methodIssue       = "issueCertificate"
	methodRevoke      = "revokeCertificate"
	methodVerify      = "verifyCertificate"

	eventIssued  = "CertificateIssued"
	eventRevoked = "CertificateRevoked"
)

// CertificateSystemABI is the interface of the CertificateSystem contract.
const CertificateSystemABI = `[
  {"anonymous":false,"name":"CertificateIssued","type":"event","inputs":[
    {"indexed":true,"internalType":"uint256","name":"certificateId","type":"uint256"},
    {"indexed":false,"internalType":"string","name":"recipientName","type":"string"},
    {"indexed":false,"internalType":"string","name":"courseName","type":"string"},
    {"indexed":false,"internalType":"uint256","name":"issueDate","type":"uint256"}]},
  {"anonymous":false,"name":"CertificateRevoked","type":"event","inputs":[
    {"indexed":true,"internalType":"uint256","name":"certificateId","type":"uint256"}]},
  {"name":"issueCertificate","type":"function","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"internalType":"uint256","name":"_certificateId","type":"uint256"},
    {"internalType":"string","name":"_recipientName","type":"string"},
    {"internalType":"string","name":"_courseName","type":"string"},
    {"internalType":"uint256","name":"_issueDate","type":"uint256"}]},
  {"name":"revokeCertificate","type":"function","stateMutability":"nonpayable","outputs":[],"inputs":[
    {"internalType":"uint256","name":"_certificateId","type":"uint256"}]},
  {"name":"certificateCount","type":"function","stateMutability":"view","inputs":[],"outputs":[
    {"internalType":"uint256","name":"","type":"uint256"}]},
  {"name":"certificates","type":"function","stateMutability":"view","inputs":[
    {"internalType":"uint256","name":"","type":"uint256"}],"outputs":[
    {"internalType":"uint256","name":"certificateId","type":"uint256"},
    {"internalType":"string","name":"recipientName","type":"string"},
    {"internalType":"string","name":"courseName","type":"string"},
    {"internalType":"uint256","name":"issueDate","type":"uint256"},
    {"internalType":"bool","name":"isValid","type":"bool"}]},
  {"name":"getCertificateCount","type":"function","stateMutability":"view","inputs":[],"outputs":[
    {"internalType":"uint256","name":"","type":"uint256"}]},
  {"name":"verifyCertificate","type":"function","stateMutability":"view","inputs":[
    {"internalType":"uint256","name":"_certificateId","type":"uint256"}],"outputs":[
    {"internalType":"bool","name":"","type":"bool"}]}
]`

// ParseABI parses CertificateSystemABI.
func ParseABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(CertificateSystemABI))
}
