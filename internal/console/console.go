// Package console is the interactive menu front end of the ledger.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"ledger/internal/accounts"
	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/taxonomy"
)

// errQuit ends the session when input is exhausted.
var errQuit = errors.New("input closed")

// Deps are the services the console drives.
type Deps struct {
	Accounts *accounts.Manager
	Taxonomy *taxonomy.Manager
	Ledger   *ledger.Service
	Logger   *log.Logger
}

// Console reads menu choices line by line and prints results.
type Console struct {
	in       *bufio.Scanner
	out      io.Writer
	accounts *accounts.Manager
	taxonomy *taxonomy.Manager
	ledger   *ledger.Service
	logger   *log.Logger

	user *core.Principal
}

func New(in io.Reader, out io.Writer, deps Deps) *Console {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default(log.ComponentConsole)
	}
	return &Console{
		in:       bufio.NewScanner(in),
		out:      out,
		accounts: deps.Accounts,
		taxonomy: deps.Taxonomy,
		ledger:   deps.Ledger,
		logger:   logger,
	}
}

// Run loops over the menus until the user exits or input ends.
func (c *Console) Run(ctx context.Context) error {
	c.println("=====记账管理系统=====")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var (
			done bool
			err  error
		)
		if c.user == nil {
			done, err = c.guestMenu(ctx)
		} else {
			err = c.userMenu(ctx)
		}
		if errors.Is(err, errQuit) || done {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (c *Console) guestMenu(ctx context.Context) (bool, error) {
	c.println("\n1.登录\n2.注册\n3.退出")
	choice, err := c.prompt("请选择操作：")
	if err != nil {
		return false, err
	}
	switch choice {
	case "1":
		username, password, err := c.credentials()
		if err != nil {
			return false, err
		}
		p, err := c.accounts.Login(ctx, username, password)
		c.println(c.outcome(ctx, err, "登录成功", reason{core.ErrNotFound, "登录失败，用户不存在"}))
		if err == nil {
			c.user = &p
		}
	case "2":
		username, password, err := c.credentials()
		if err != nil {
			return false, err
		}
		err = c.accounts.Register(ctx, username, password)
		c.println(c.outcome(ctx, err, "注册成功", reason{core.ErrDuplicate, "注册失败，用户名已存在"}))
	case "3":
		c.println("退出系统")
		return true, nil
	default:
		c.println("操作无效，请重新输入")
	}
	return false, nil
}

func (c *Console) userMenu(ctx context.Context) error {
	c.printf("\n===== 欢迎%s =====\n\n", c.user.Username)
	items := []string{"记账管理", "统计查询", "预算管理"}
	if c.user.IsAdmin {
		items = append(items, "管理员功能")
	}
	items = append(items, "退出登录")
	for i, item := range items {
		c.printf("%d.%s\n", i+1, item)
	}

	choice, err := c.prompt("请选择:")
	if err != nil {
		return err
	}
	n, _ := strconv.Atoi(choice)
	if n < 1 || n > len(items) {
		c.println("输入无效，请重新选择")
		return nil
	}
	switch items[n-1] {
	case "记账管理":
		return c.recordsMenu(ctx)
	case "统计查询":
		return c.showStatistics(ctx)
	case "预算管理":
		return c.budgetMenu(ctx)
	case "管理员功能":
		return c.adminMenu(ctx)
	default:
		c.user = nil
		c.println("退出登录成功")
		return nil
	}
}

func (c *Console) credentials() (string, string, error) {
	username, err := c.prompt("用户名：")
	if err != nil {
		return "", "", err
	}
	password, err := c.prompt("密码：")
	if err != nil {
		return "", "", err
	}
	return username, password, nil
}

// prompt prints label and returns the next line without surrounding spaces.
func (c *Console) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", errQuit
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) promptMoney(label string) (core.Money, bool, error) {
	raw, err := c.prompt(label)
	if err != nil {
		return core.Money{}, false, err
	}
	m, err := core.ParseMoney(raw)
	if err != nil {
		c.println("金额无效")
		return core.Money{}, false, nil
	}
	return m, true, nil
}

func (c *Console) promptIndex(label string) (int, bool, error) {
	raw, err := c.prompt(label)
	if err != nil {
		return 0, false, err
	}
	i, err := strconv.Atoi(raw)
	if err != nil {
		c.println("索引无效")
		return 0, false, nil
	}
	return i, true, nil
}

func (c *Console) confirm(label string) (bool, error) {
	answer, err := c.prompt(label)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(answer, "y"), nil
}

// reason overrides the message shown for errors matching target.
type reason struct {
	target error
	msg    string
}

// outcome returns okMsg on success and a readable reason otherwise.
func (c *Console) outcome(ctx context.Context, err error, okMsg string, reasons ...reason) string {
	if err == nil {
		_, msg := core.Outcome(nil, okMsg)
		return msg
	}
	for _, r := range reasons {
		if errors.Is(err, r.target) {
			return r.msg
		}
	}
	return c.describe(ctx, err)
}

func (c *Console) describe(ctx context.Context, err error) string {
	switch {
	case errors.Is(err, core.ErrEmptyCredentials):
		return "用户名和密码不能为空"
	case errors.Is(err, core.ErrOutOfRange):
		return "索引无效"
	case errors.Is(err, core.ErrInvalidCredential):
		return "密码错误"
	case errors.Is(err, core.ErrInvalidKind):
		return "分类不存在"
	case errors.Is(err, core.ErrUnknownCategory):
		return "类型不存在"
	case errors.Is(err, core.ErrEmptyCategory):
		return "类型名称不能为空"
	case errors.Is(err, core.ErrInvalidAmount):
		return "金额无效"
	case errors.Is(err, core.ErrDuplicate):
		return "已存在"
	case errors.Is(err, core.ErrNotFound):
		return "不存在"
	case core.IsUserError(err):
		_, msg := core.Outcome(err, "")
		return msg
	}
	c.logger.ErrorContext(ctx, "Console operation failed", log.FieldError, err)
	return "操作失败：" + err.Error()
}

func (c *Console) println(a ...any) {
	fmt.Fprintln(c.out, a...)
}

func (c *Console) printf(format string, a ...any) {
	fmt.Fprintf(c.out, format, a...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
