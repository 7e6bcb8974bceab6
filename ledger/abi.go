package ledger

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

//go:embed abi/MultiSigWallet.json
var walletABIJSON []byte

//go:embed abi/SocialRecoveryModule.json
var recoveryABIJSON []byte

// Wallet contract methods.
const (
	MethodGetOwners          = "getOwners"
	MethodThreshold          = "threshold"
	MethodIsOwner            = "isOwner"
	MethodNonce              = "nonce"
	MethodGetTransactionHash = "getTransactionHash"
	MethodGetTransaction     = "getTransaction"
	MethodIsApproved         = "isApproved"
	MethodIsModuleEnabled    = "isModuleEnabled"
	MethodGetModules         = "getModules"
	MethodPropose            = "proposeTransaction"
	MethodApprove            = "approveTransaction"
	MethodRevoke             = "revokeApproval"
	MethodCancel             = "cancelTransaction"
	MethodExecute            = "executeTransaction"
	MethodApproveAndExecute  = "approveAndExecute"

	MethodAddOwner        = "addOwner"
	MethodRemoveOwner     = "removeOwner"
	MethodReplaceOwner    = "replaceOwner"
	MethodChangeThreshold = "changeThreshold"
	MethodEnableModule    = "enableModule"
	MethodDisableModule   = "disableModule"
)

// Wallet contract events.
const (
	EventTransactionProposed  = "TransactionProposed"
	EventTransactionApproved  = "TransactionApproved"
	EventApprovalRevoked      = "ApprovalRevoked"
	EventTransactionCancelled = "TransactionCancelled"
	EventTransactionExecuted  = "TransactionExecuted"
	EventOwnerAdded           = "OwnerAdded"
	EventOwnerRemoved         = "OwnerRemoved"
	EventThresholdChanged     = "ThresholdChanged"
	EventModuleEnabled        = "ModuleEnabled"
	EventModuleDisabled       = "ModuleDisabled"
)

// Recovery module methods.
const (
	MethodGetRecoveryConfig = "getRecoveryConfig"
	MethodIsGuardian        = "isGuardian"
	MethodRecoveryNonce     = "recoveryNonce"
	MethodGetRecoveryHash   = "getRecoveryHash"
	MethodGetRecovery       = "getRecovery"
	MethodHasApproved       = "hasApproved"
	MethodSetupRecovery     = "setupRecovery"
	MethodInitiateRecovery  = "initiateRecovery"
	MethodApproveRecovery   = "approveRecovery"
	MethodExecuteRecovery   = "executeRecovery"
	MethodCancelRecovery    = "cancelRecovery"
)

// Recovery module events.
const (
	EventRecoveryConfigured = "RecoveryConfigured"
	EventRecoveryInitiated  = "RecoveryInitiated"
	EventRecoveryApproved   = "RecoveryApproved"
	EventRecoveryExecuted   = "RecoveryExecuted"
	EventRecoveryCancelled  = "RecoveryCancelled"
)

// Canonical event signatures. They are kept literal so the topic-signature
// extraction path stays independent from the parsed interface description.
const (
	SignatureTransactionProposed = "TransactionProposed(bytes32,address,address,uint256,bytes,uint256)"
	SignatureTransactionExecuted = "TransactionExecuted(bytes32,address)"
	SignatureRecoveryInitiated   = "RecoveryInitiated(bytes32,address,address,address[],uint256,uint256)"
)

var (
	walletOnce   sync.Once
	walletABI    abi.ABI
	walletErr    error
	recoveryOnce sync.Once
	recoveryABI  abi.ABI
	recoveryErr  error
)

// WalletABI returns the parsed multisig wallet interface description.
func WalletABI() *abi.ABI {
	walletOnce.Do(func() {
		walletABI, walletErr = abi.JSON(bytes.NewReader(walletABIJSON))
	})
	if walletErr != nil {
		panic(fmt.Sprintf("ledger: parse wallet abi: %v", walletErr))
	}
	return &walletABI
}

// RecoveryModuleABI returns the parsed recovery module interface description.
func RecoveryModuleABI() *abi.ABI {
	recoveryOnce.Do(func() {
		recoveryABI, recoveryErr = abi.JSON(bytes.NewReader(recoveryABIJSON))
	})
	if recoveryErr != nil {
		panic(fmt.Sprintf("ledger: parse recovery abi: %v", recoveryErr))
	}
	return &recoveryABI
}
