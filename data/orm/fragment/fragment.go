// Package fragment 生成带别名的表引用与列引用片段。
//
// 命名规则：令牌 t 下的表 tbl 在 SQL 中记为 t_tbl，其列 col 输出为 t_col。
// 令牌不含下划线且在注册表内唯一，因此同一查询中多次出现的同一张表不会产生重名。
// 全部为纯函数。
package fragment

// TableAlias 返回表在查询中的 SQL 名称；alias 为空时即表名本身。
func TableAlias(alias, table string) string {
	if alias == "" {
		return table
	}
	return alias + "_" + table
}

// TableReference 返回 FROM/JOIN 中使用的表引用 "<table> <alias>_<table>"。
func TableReference(alias, table string) string {
	if alias == "" {
		return table
	}
	return table + " " + TableAlias(alias, table)
}

// ColumnLabel 返回列在结果集中的输出名。
func ColumnLabel(alias, column string) string {
	if alias == "" {
		return column
	}
	return alias + "_" + column
}

// ColumnReferences 为 columns 中的每一列生成 "<alias>_<table>.<col> AS <alias>_<col>"。
//
// subset 非空时只保留其中列出的列，顺序仍按 columns。
func ColumnReferences(alias, table string, columns, subset []string) []string {
	var keep map[string]struct{}
	if len(subset) > 0 {
		keep = make(map[string]struct{}, len(subset))
		for _, c := range subset {
			keep[c] = struct{}{}
		}
	}

	qualifier := TableAlias(alias, table)
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		if keep != nil {
			if _, ok := keep[col]; !ok {
				continue
			}
		}
		out = append(out, qualifier+"."+col+" AS "+ColumnLabel(alias, col))
	}
	return out
}

// JoinCondition 返回 "<left>.<leftColumn> = <right>.<rightColumn>"，left/right 为 TableAlias 的结果。
func JoinCondition(left, leftColumn, right, rightColumn string) string {
	return left + "." + leftColumn + " = " + right + "." + rightColumn
}
