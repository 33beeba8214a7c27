package entities

import "slices"

func addUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}

func without(list []string, v string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == v })
}
