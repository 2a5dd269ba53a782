package region

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Region 目录中的区域: Slug 出现在站点地址中,ID 供数据接口使用(未知时为空)
type Region struct {
	Slug    string
	ID      string
	Name    string
	aliases []string
}

// Default 城市无法解析时使用的区域
var Default = Region{Slug: "moscow", ID: "32", Name: "Москва"}

var table = []Region{
	Default,
	{Slug: "spb", ID: "38", Name: "Санкт-Петербург", aliases: []string{"saint petersburg", "st petersburg", "petersburg", "питер", "спб"}},
	{Slug: "novosibirsk", ID: "1", Name: "Новосибирск"},
	{Slug: "ekaterinburg", Name: "Екатеринбург", aliases: []string{"yekaterinburg"}},
	{Slug: "kazan", Name: "Казань"},
	{Slug: "n_novgorod", Name: "Нижний Новгород", aliases: []string{"nizhny novgorod", "nnovgorod"}},
	{Slug: "chelyabinsk", Name: "Челябинск"},
	{Slug: "samara", Name: "Самара"},
	{Slug: "omsk", Name: "Омск"},
	{Slug: "rostov", Name: "Ростов-на-Дону", aliases: []string{"rostov-on-don", "ростов"}},
	{Slug: "ufa", Name: "Уфа"},
	{Slug: "krasnoyarsk", Name: "Красноярск"},
	{Slug: "perm", Name: "Пермь"},
	{Slug: "voronezh", Name: "Воронеж"},
	{Slug: "volgograd", Name: "Волгоград"},
	{Slug: "krasnodar", Name: "Краснодар"},
	{Slug: "sochi", Name: "Сочи"},
	{Slug: "tyumen", Name: "Тюмень"},
}

// Resolve 按 slug、俄文名或别名查找区域,找不到时返回 Default 和 false
func Resolve(city string) (Region, bool) {
	key := strings.ToLower(strings.TrimSpace(city))
	if key == "" {
		return Default, false
	}
	for _, r := range table {
		if key == r.Slug || key == strings.ToLower(r.Name) {
			return r, true
		}
		for _, a := range r.aliases {
			if key == a {
				return r, true
			}
		}
	}
	return Default, false
}

// List 按 slug 排序的全部区域
func List() []Region {
	out := make([]Region, len(table))
	copy(out, table)
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// QualifyQueries 区域未解析时把城市名写进查询词,让默认区域内的搜索仍指向该城市
func QualifyQueries(queries []string, city string) []string {
	city = strings.TrimSpace(city)
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if city == "" || strings.HasPrefix(q, "http") || strings.Contains(strings.ToLower(q), strings.ToLower(city)) {
			out = append(out, q)
			continue
		}
		out = append(out, q+" "+city)
	}
	return out
}

// DisplayCity 写入记录的城市名: 首字母大写
func DisplayCity(city string) string {
	city = strings.TrimSpace(city)
	r, size := utf8.DecodeRuneInString(city)
	if r == utf8.RuneError {
		return city
	}
	return string(unicode.ToUpper(r)) + city[size:]
}
