package console

import (
	"context"

	"ledger/internal/core"
)

func (c *Console) recordsMenu(ctx context.Context) error {
	c.println("1.添加记录\n2.查询记录\n3.修改记录\n4.删除记录")
	choice, err := c.prompt("请选择:")
	if err != nil {
		return err
	}
	records := c.ledger.Records(c.user.Username)

	switch choice {
	case "1":
		amount, ok, err := c.promptMoney("金额(收入正/支出负):")
		if err != nil || !ok {
			return err
		}
		c.showCategories(ctx)
		category, err := c.prompt("类型：")
		if err != nil {
			return err
		}
		date, err := c.prompt("日期(默认格式YYYY-MM-DD):")
		if err != nil {
			return err
		}
		remark, err := c.prompt("备注：")
		if err != nil {
			return err
		}
		_, err = records.Add(ctx, amount, category, date, remark)
		c.println(c.outcome(ctx, err, "记录添加成功"))

	case "2":
		list, err := records.List(ctx)
		if err != nil {
			c.println(c.describe(ctx, err))
			return nil
		}
		if len(list) == 0 {
			c.println("暂无记录")
			return nil
		}
		for i, r := range list {
			c.printf("%d, %s  %s  %s  %s\n", i, r.Date, r.Category, r.Amount, r.Remark)
		}

	case "3":
		index, ok, err := c.promptIndex("要修改的记录索引：")
		if err != nil || !ok {
			return err
		}
		patch, ok, err := c.promptPatch()
		if err != nil || !ok {
			return err
		}
		_, err = records.Update(ctx, index, patch)
		c.println(c.outcome(ctx, err, "修改成功"))

	case "4":
		index, ok, err := c.promptIndex("要删除的记录索引：")
		if err != nil || !ok {
			return err
		}
		_, err = records.Delete(ctx, index)
		c.println(c.outcome(ctx, err, "删除成功"))

	default:
		c.println("输入无效，请重新选择")
	}
	return nil
}

// promptPatch asks field by field which values to change.
func (c *Console) promptPatch() (core.RecordPatch, bool, error) {
	var patch core.RecordPatch

	change, err := c.confirm("是否修改金额(y/n):")
	if err != nil {
		return patch, false, err
	}
	if change {
		amount, ok, err := c.promptMoney("新金额：")
		if err != nil || !ok {
			return patch, false, err
		}
		patch.Amount = &amount
	}

	for _, field := range []struct {
		ask, label string
		dst        **string
	}{
		{"是否修改类型(y/n):", "新类型：", &patch.Category},
		{"是否修改日期(y/n):", "新日期：", &patch.Date},
		{"是否修改备注(y/n):", "新备注：", &patch.Remark},
	} {
		change, err := c.confirm(field.ask)
		if err != nil {
			return patch, false, err
		}
		if !change {
			continue
		}
		v, err := c.prompt(field.label)
		if err != nil {
			return patch, false, err
		}
		*field.dst = &v
	}
	return patch, true, nil
}

func (c *Console) showCategories(ctx context.Context) {
	tax, err := c.taxonomy.List(ctx)
	if err != nil {
		c.println(c.describe(ctx, err))
		return
	}
	for _, k := range core.Kinds() {
		c.printf("可选类型(%s): %v\n", kindLabel(k), tax[k])
	}
}

func (c *Console) showStatistics(ctx context.Context) error {
	summary, err := c.ledger.Statistics(ctx, c.user.Username)
	if err != nil {
		c.println(c.describe(ctx, err))
		return nil
	}
	c.printf("总金额：%s\n", summary.Total)
	c.println("按类型统计收支：")
	for _, ca := range summary.ByCategory {
		c.printf("  %s: %s\n", ca.Name, ca.Amount)
	}
	c.println("消费类型次数：")
	for _, name := range sortedKeys(summary.Counts) {
		c.printf("  %s: %d\n", name, summary.Counts[name])
	}
	return nil
}

func (c *Console) budgetMenu(ctx context.Context) error {
	c.println("\n1.设置本月预算\n2.查看剩余预算")
	choice, err := c.prompt("请选择：")
	if err != nil {
		return err
	}
	tracker := c.ledger.Budget(c.user.Username)

	switch choice {
	case "1":
		limit, ok, err := c.promptMoney("请输入本月预算：")
		if err != nil || !ok {
			return err
		}
		_, err = tracker.SetBudget(ctx, limit)
		c.println(c.outcome(ctx, err, "预算设置成功"))
	case "2":
		b, err := tracker.Budget(ctx)
		if err != nil {
			c.println(c.describe(ctx, err))
			return nil
		}
		c.printf("本月预算：%s，已支出：%s\n", b.Limit, b.Spent)
		c.printf("本月预算剩余：%s\n", b.Remaining)
	default:
		c.println("输入无效，请重新选择")
	}
	return nil
}

func (c *Console) adminMenu(ctx context.Context) error {
	c.println("\n1.管理消费类型\n2.修改用户密码")
	choice, err := c.prompt("请选择：")
	if err != nil {
		return err
	}

	switch choice {
	case "1":
		c.println("\n1.添加类型\n2.删除类型")
		action, err := c.prompt("请选择：")
		if err != nil {
			return err
		}
		if action != "1" && action != "2" {
			c.println("输入无效，请重新选择")
			return nil
		}
		rawKind, err := c.prompt("分类(收入/支出):")
		if err != nil {
			return err
		}
		name, err := c.prompt("类型名称：")
		if err != nil {
			return err
		}
		kind, err := core.ParseCategoryKind(rawKind)
		if err != nil {
			c.println(c.describe(ctx, err))
			return nil
		}
		if action == "1" {
			err = c.taxonomy.Add(ctx, kind, name)
			c.println(c.outcome(ctx, err, "类型添加成功", reason{core.ErrDuplicate, "类型已存在"}))
		} else {
			err = c.taxonomy.Remove(ctx, kind, name)
			c.println(c.outcome(ctx, err, "类型删除成功", reason{core.ErrNotFound, "类型不存在"}))
		}

	case "2":
		username, err := c.prompt("要修改的用户名：")
		if err != nil {
			return err
		}
		password, err := c.prompt("新密码：")
		if err != nil {
			return err
		}
		err = c.accounts.ChangePassword(ctx, username, password)
		c.println(c.outcome(ctx, err, "密码修改成功", reason{core.ErrNotFound, "用户不存在"}))

	default:
		c.println("输入无效，请重新选择")
	}
	return nil
}

func kindLabel(k core.CategoryKind) string {
	if k == core.Income {
		return "收入"
	}
	return "支出"
}
