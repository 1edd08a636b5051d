package wallet

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/split-wallet/split-wallet/internal/network"
	"github.com/split-wallet/split-wallet/internal/recovery"
	apperrors "github.com/split-wallet/split-wallet/pkg/errors"
)

// memStore is an in-memory recovery.SecretStore.
type memStore struct {
	mu       sync.Mutex
	data     map[string][]byte
	failing  bool
	writeCnt int
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Store(_ context.Context, ownerID, key string, secret []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCnt++
	if m.failing {
		return false
	}
	cp := make([]byte, len(secret))
	copy(cp, secret)
	m.data[ownerID+"/"+key] = cp
	return true
}

func (m *memStore) Retrieve(_ context.Context, ownerID, key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil
	}
	return m.data[ownerID+"/"+key]
}

func (m *memStore) Remove(_ context.Context, ownerID, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[ownerID+"/"+key]
	delete(m.data, ownerID+"/"+key)
	return ok
}

// fakeRPC implements the rpcClient subset with canned responses.
type fakeRPC struct {
	lamports     uint64
	tokenAmount  string
	tokenErr     error
	accountInfo  *rpc.GetAccountInfoResult
	accountErr   error
	blockhash    solana.Hash
	blockhashErr error
}

func (f *fakeRPC) GetBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	return &rpc.GetBalanceResult{Value: f.lamports}, nil
}

func (f *fakeRPC) GetTokenAccountBalance(context.Context, solana.PublicKey, rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	return &rpc.GetTokenAccountBalanceResult{
		Value: &rpc.UiTokenAmount{Amount: f.tokenAmount},
	}, nil
}

func (f *fakeRPC) GetAccountInfo(context.Context, solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return f.accountInfo, nil
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if f.blockhashErr != nil {
		return nil, f.blockhashErr
	}
	return &rpc.GetLatestBlockhashResult{
		Value: &rpc.LatestBlockhashResult{Blockhash: f.blockhash},
	}, nil
}

// fixedSponsor returns a static sponsor address.
type fixedSponsor struct{ address solana.PublicKey }

func (f *fixedSponsor) SponsorAddress(context.Context) (solana.PublicKey, error) {
	return f.address, nil
}

func newTestService(store *memStore, rpcFake *fakeRPC, sponsor solana.PublicKey) *Service {
	svc := NewService(
		recovery.NewService(store),
		network.NewResolver(network.Options{BuildRelease: false}),
		&fixedSponsor{address: sponsor},
	)
	svc.connect = func(context.Context) rpcClient { return rpcFake }
	return svc
}

func testSponsorKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func TestEnsureWallet(t *testing.T) {
	ctx := context.Background()
	sponsor := testSponsorKey(t).PublicKey()

	t.Run("fresh install creates and verifies", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, &fakeRPC{}, sponsor)

		info, err := svc.EnsureWallet(ctx, "u1", "user@example.com")
		require.NoError(t, err)
		assert.True(t, info.Created)
		assert.False(t, info.Address.IsZero())

		// Zero balance on the brand-new address.
		bal, err := svc.GetBalance(ctx, info.Address)
		require.NoError(t, err)
		assert.Zero(t, bal.Lamports)
	})

	t.Run("second call recovers the same wallet", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store, &fakeRPC{}, sponsor)

		first, err := svc.EnsureWallet(ctx, "u1", "user@example.com")
		require.NoError(t, err)

		second, err := svc.EnsureWallet(ctx, "u1", "user@example.com")
		require.NoError(t, err)
		assert.False(t, second.Created)
		assert.Equal(t, recovery.ViaPrimary, second.RecoveredVia)
		assert.Equal(t, first.Address, second.Address)
	})

	t.Run("storage failure surfaces storage_unavailable", func(t *testing.T) {
		store := newMemStore()
		store.failing = true
		svc := newTestService(store, &fakeRPC{}, sponsor)

		_, err := svc.EnsureWallet(ctx, "u1", "")
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageUnavailable))

		// One initial attempt plus exactly one retry of the primary write.
		assert.Equal(t, 2, store.writeCnt)
	})
}

func TestGetBalance(t *testing.T) {
	ctx := context.Background()
	sponsor := testSponsorKey(t).PublicKey()
	address := testSponsorKey(t).PublicKey()

	t.Run("returns sol and token balances", func(t *testing.T) {
		svc := newTestService(newMemStore(), &fakeRPC{lamports: 5000, tokenAmount: "1250000"}, sponsor)

		bal, err := svc.GetBalance(ctx, address)
		require.NoError(t, err)
		assert.EqualValues(t, 5000, bal.Lamports)
		assert.EqualValues(t, 1250000, bal.TokenMicro)
	})

	t.Run("missing token account reads as zero", func(t *testing.T) {
		svc := newTestService(newMemStore(), &fakeRPC{
			lamports: 100,
			tokenErr: errors.New("could not find account"),
		}, sponsor)

		bal, err := svc.GetBalance(ctx, address)
		require.NoError(t, err)
		assert.EqualValues(t, 100, bal.Lamports)
		assert.Zero(t, bal.TokenMicro)
	})
}

func TestPrepareTransfer(t *testing.T) {
	ctx := context.Background()
	sponsorKey := testSponsorKey(t)
	sponsor := sponsorKey.PublicKey()
	recipient := testSponsorKey(t).PublicKey()

	blockhash := solana.Hash{}
	copy(blockhash[:], []byte("test-blockhash-test-blockhash-12"))

	t.Run("sponsor pays, user partial-signs", func(t *testing.T) {
		rpcFake := &fakeRPC{
			blockhash:  blockhash,
			accountErr: errors.New("not found"), // recipient ATA missing
		}
		svc := newTestService(newMemStore(), rpcFake, sponsor)

		cred, err := NewCredential()
		require.NoError(t, err)

		prepared, err := svc.PrepareTransfer(ctx, cred, recipient, 750000)
		require.NoError(t, err)
		assert.Equal(t, network.Devnet, prepared.DeclaredNetwork)
		assert.Equal(t, blockhash, prepared.Blockhash)

		raw, err := base64.StdEncoding.DecodeString(prepared.SerializedTransaction)
		require.NoError(t, err)
		tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
		require.NoError(t, err)

		// Fee payer is the first account key.
		require.NotEmpty(t, tx.Message.AccountKeys)
		assert.True(t, tx.Message.AccountKeys[0].Equals(sponsor))

		// Missing recipient ATA adds a create instruction before the transfer.
		assert.Len(t, tx.Message.Instructions, 2)

		// Two required signers, only the user's slot filled.
		require.Len(t, tx.Signatures, 2)
		userSigned := false
		for _, sig := range tx.Signatures {
			if !sig.IsZero() {
				userSigned = true
			}
		}
		assert.True(t, userSigned)
		assert.True(t, tx.Signatures[0].IsZero(), "sponsor slot must be unsigned")
	})

	t.Run("existing recipient account skips create instruction", func(t *testing.T) {
		rpcFake := &fakeRPC{
			blockhash:   blockhash,
			accountInfo: &rpc.GetAccountInfoResult{Value: &rpc.Account{}},
		}
		svc := newTestService(newMemStore(), rpcFake, sponsor)

		cred, err := NewCredential()
		require.NoError(t, err)

		prepared, err := svc.PrepareTransfer(ctx, cred, recipient, 1)
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(prepared.SerializedTransaction)
		require.NoError(t, err)
		tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
		require.NoError(t, err)
		assert.Len(t, tx.Message.Instructions, 1)
	})

	t.Run("blockhash failure is surfaced", func(t *testing.T) {
		rpcFake := &fakeRPC{blockhashErr: errors.New("rpc down"), accountErr: errors.New("nf")}
		svc := newTestService(newMemStore(), rpcFake, sponsor)

		cred, err := NewCredential()
		require.NoError(t, err)

		_, err = svc.PrepareTransfer(ctx, cred, recipient, 1)
		assert.ErrorContains(t, err, "blockhash")
	})
}
