package render

import (
	"strings"
	"unicode"
)

// SectionID identifies one part of a rendered report.
type SectionID string

const (
	SectionProduct    SectionID = "product"
	SectionConditions SectionID = "conditions"
	SectionResults    SectionID = "results"
	SectionConclusion SectionID = "conclusion"
	SectionOther      SectionID = "other"
)

// Section is one heading of a rendered report.
type Section struct {
	ID    SectionID
	Title string
}

// Sections lists report sections in display order.
var Sections = []Section{
	{SectionProduct, "产品信息 / Product information"},
	{SectionConditions, "试验条件 / Test conditions"},
	{SectionResults, "试验结果 / Test results"},
	{SectionConclusion, "结论 / Conclusion"},
	{SectionOther, "其他 / Other"},
}

// containerKeys are keys whose map value holds a whole section.
var containerKeys = map[SectionID][]string{
	SectionProduct: {
		"产品信息", "样品信息", "基本信息",
		"product", "product_info", "product_information", "sample_info",
	},
	SectionConditions: {
		"试验条件", "测试条件", "检测条件",
		"test_conditions", "conditions",
	},
	SectionResults: {
		"试验结果", "测试结果", "检测结果", "关键数据",
		"results", "test_results", "key_data",
	},
	SectionConclusion: {
		"结论", "检测结论",
		"conclusion",
	},
}

// synonyms group field keys by section.
var synonyms = map[SectionID][]string{
	SectionProduct: {
		"产品型号", "产品名称", "型号", "规格", "规格型号", "牌号", "材料", "材质", "样品名称",
		"样品编号", "炉批号", "批号", "委托单位", "生产厂家", "生产单位", "报告编号",
		"model", "product_model", "product_name", "specification", "grade", "material",
		"sample", "sample_name", "sample_id", "batch", "batch_number", "manufacturer",
		"client", "report_number", "report_no",
	},
	SectionConditions: {
		"试验温度", "温度", "湿度", "试验方法", "检测依据", "试验依据", "标准", "执行标准",
		"试验设备", "仪器设备", "试验日期", "检测日期", "试验速率", "标距", "原始标距",
		"test_temperature", "temperature", "humidity", "method", "test_method", "standard",
		"test_standard", "equipment", "test_date", "date", "test_speed", "gauge_length",
	},
	SectionResults: {
		"最大力", "屈服强度", "上屈服强度", "下屈服强度", "规定塑性延伸强度", "抗拉强度",
		"断后伸长率", "最大力总延伸率", "断面收缩率", "弹性模量", "屈强比", "强屈比",
		"maximum_force", "max_force", "yield_strength", "upper_yield_strength",
		"lower_yield_strength", "proof_strength", "tensile_strength", "elongation",
		"elongation_after_fracture", "reduction_of_area", "elastic_modulus", "modulus",
		"yield_ratio",
	},
	SectionConclusion: {
		"结论", "检测结论", "试验结论", "判定", "判定结果", "备注",
		"conclusion", "verdict", "judgement", "judgment", "remarks", "notes",
	},
}

var (
	fieldSections     = index(synonyms)
	containerSections = index(containerKeys)
)

func index(groups map[SectionID][]string) map[string]SectionID {
	m := make(map[string]SectionID)
	for id, keys := range groups {
		for _, k := range keys {
			m[normalizeKey(k)] = id
		}
	}
	return m
}

// normalizeKey lowercases a key, drops a trailing unit in parentheses and
// folds spaces and hyphens into underscores: "Tensile Strength (MPa)" and
// "抗拉强度（MPa）" normalize to "tensile_strength" and "抗拉强度".
func normalizeKey(key string) string {
	k := strings.TrimSpace(key)
	if i := strings.IndexAny(k, "(（["); i > 0 {
		k = k[:i]
	}
	k = strings.ToLower(strings.TrimSpace(k))
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return '_'
		}
		return r
	}, k)
}

// SectionFor returns the section a field key belongs to.
func SectionFor(key string) SectionID {
	if id, ok := fieldSections[normalizeKey(key)]; ok {
		return id
	}
	return SectionOther
}

func containerSection(key string) (SectionID, bool) {
	id, ok := containerSections[normalizeKey(key)]
	return id, ok
}
