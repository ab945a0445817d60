package service

import (
	"context"
	"testing"

	"github.com/sibylline/sibyl/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreditService_EnsureAccountIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.creditService.EnsureAccount(ctx, "user-1", 10))
	require.NoError(t, env.creditService.EnsureAccount(ctx, "user-1", 10))

	assert.Equal(t, int64(10), env.credits(t, "user-1"))

	// 赠送必须留下审计流水
	entries, err := env.creditService.Entries(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.CreditEntryCredit, entries[0].Kind)
	assert.Equal(t, "signup bonus", entries[0].Reason)
}

func TestCreditService_AccountLookupByUserId(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 10)

	// 账户主键列是user_id，查询必须按该列进行
	account, err := env.creditService.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", account.UserID)
	assert.Equal(t, int64(10), account.Credits)

	_, err = env.creditService.GetAccount(ctx, "no-such-user")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCreditService_DebitAndRefund(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 10)

	debited, err := env.creditService.Debit(ctx, "user-1", 3, "session abc")
	require.NoError(t, err)
	require.True(t, debited)
	assert.Equal(t, int64(7), env.credits(t, "user-1"))

	require.NoError(t, env.creditService.Refund(ctx, "user-1", 3, "all models failed"))
	assert.Equal(t, int64(10), env.credits(t, "user-1"))

	// 不变式: credits == earned - spent
	account, err := env.creditService.GetAccount(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, account.Credits, account.TotalCreditsEarned-account.TotalCreditsSpent)

	entries, err := env.creditService.Entries(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}
	assert.Equal(t, account.Credits, sum)
}

func TestCreditService_DebitInsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 2)

	debited, err := env.creditService.Debit(ctx, "user-1", 3, "session abc")
	require.NoError(t, err)
	assert.False(t, debited)

	// 失败的扣减不产生任何变动
	assert.Equal(t, int64(2), env.credits(t, "user-1"))
	entries, err := env.creditService.Entries(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1) // 只有注册赠送
}

func TestCreditService_DebitNeverOverdraws(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedAccount(t, "user-1", 5)

	var succeeded int
	for i := 0; i < 10; i++ {
		debited, err := env.creditService.Debit(ctx, "user-1", 1, "session")
		require.NoError(t, err)
		if debited {
			succeeded++
		}
	}

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, int64(0), env.credits(t, "user-1"))

	var debitEntries int64
	require.NoError(t, env.db.Model(&models.CreditEntry{}).
		Where("user_id = ? AND kind = ?", "user-1", models.CreditEntryDebit).
		Count(&debitEntries).Error)
	assert.Equal(t, int64(5), debitEntries)
}

func TestCreditService_RefundToMissingAccountFails(t *testing.T) {
	env := newTestEnv(t)
	err := env.creditService.Refund(context.Background(), "no-such-user", 3, "refund")
	assert.Error(t, err)
}
