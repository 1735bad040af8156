package alias

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	letters = "abcdefghijklmnopqrstuvwxyz"

	// DefaultMinWidth 计数器令牌的最小长度
	DefaultMinWidth = 4
	// DefaultMaxAttempts 随机令牌撞车后的最大重抽次数
	DefaultMaxAttempts = 8
)

// Generator 生成别名令牌。
//
// taken 报告令牌是否已被当前注册表占用；调用时注册表持有写锁，实现不得回调注册表。
// 返回已占用的令牌会被注册表视为内部不变量破坏（ErrCodeAliasConflict）。
type Generator interface {
	Next(taken func(Token) bool) Token
}

// CounterGenerator 由单调递增计数器派生令牌，构造即唯一，输出可复现。
//
// 第 n 个令牌是长度不小于 minWidth 的小写字母串按短字典序枚举的第 n 项：
// aaaa, aaab, ..., zzzz, aaaaa, ...
type CounterGenerator struct {
	mu       sync.Mutex
	next     uint64
	minWidth int
}

// NewCounterGenerator 创建计数器生成器，minWidth <= 0 时使用 DefaultMinWidth。
func NewCounterGenerator(minWidth int) *CounterGenerator {
	if minWidth <= 0 {
		minWidth = DefaultMinWidth
	}
	return &CounterGenerator{minWidth: minWidth}
}

func (g *CounterGenerator) Next(taken func(Token) bool) Token {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.next
	g.next++
	return Token(encodeShortlex(n, g.minWidth))
}

func encodeShortlex(n uint64, width int) string {
	span := pow26(width)
	for span != 0 && n >= span {
		n -= span
		width++
		span = pow26(width)
	}

	buf := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		buf[i] = letters[n%26]
		n /= 26
	}
	return string(buf)
}

// pow26 返回 26^k，溢出时返回 0
func pow26(k int) uint64 {
	v := uint64(1)
	for i := 0; i < k; i++ {
		if v > (^uint64(0))/26 {
			return 0
		}
		v *= 26
	}
	return v
}

// RandomGenerator 生成"两位随机字母 + 四位 uuid 十六进制"形式的令牌。
//
// 候选令牌先与已占用集合比对，撞车则重抽；超过 maxAttempts 次后在最后一个候选上
// 追加递增的 base36 后缀，直到找到空位。
type RandomGenerator struct {
	maxAttempts int
	draw        func() string
}

// NewRandomGenerator 创建随机生成器，maxAttempts <= 0 时使用 DefaultMaxAttempts。
func NewRandomGenerator(maxAttempts int) *RandomGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &RandomGenerator{maxAttempts: maxAttempts, draw: drawRandom}
}

func (g *RandomGenerator) Next(taken func(Token) bool) Token {
	var candidate Token
	for i := 0; i < g.maxAttempts; i++ {
		candidate = Token(g.draw())
		if !taken(candidate) {
			return candidate
		}
	}

	for suffix := uint64(1); ; suffix++ {
		derived := candidate + Token(strconv.FormatUint(suffix, 36))
		if !taken(derived) {
			return derived
		}
	}
}

func drawRandom() string {
	var sb strings.Builder
	sb.Grow(6)
	sb.WriteByte(letters[rand.IntN(len(letters))])
	sb.WriteByte(letters[rand.IntN(len(letters))])
	sb.WriteString(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return sb.String()
}
