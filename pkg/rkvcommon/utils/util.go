package utils

import (
	"fmt"
	"io/fs"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
)

func CheckAndMkdir(dir string) error {
	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err1 := os.MkdirAll(dir, 0755); err1 != nil {
				return err1
			}
			stat, _ = os.Stat(dir)
		} else {
			return err
		}
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ReadFile(path string) []byte {
	file, err := os.OpenFile(path, os.O_RDONLY, 0666)
	if err != nil {
		if os.IsNotExist(err) {
			return []byte{}
		}
		log.Fatalf("failed to open file: %v\n", err)
	}
	defer file.Close()
	bytes, err := ioutil.ReadAll(file)
	if err != nil {
		log.Fatalf("failed to read file: %v\n", err)
	}
	return bytes
}

func WriteFile(path string, data []byte) {
	file, err := os.Create(path)
	if err != nil {
		log.Fatalf("failed to create file: %v\n", err)
	}
	defer file.Close()
	if _, err := file.Write(data); err != nil {
		log.Fatalf("failed to write file: %v\n", err)
	}
}

func SizeOfFile(path string) int64 {
	stat, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0
		}
		log.Fatalf("failed to stat file: %v\n", err)
	} else if stat.IsDir() {
		log.Fatalf("file path %s is directory, expected a file\n", path)
	}
	return stat.Size()
}

func DeleteFile(path string) {
	_ = os.Remove(path)
}

func DeleteDir(path string) {
	_ = os.RemoveAll(path)
}

func SizeOfDir(path string) int64 {
	res := int64(0)
	err := filepath.Walk(path, func(path string, info fs.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			res += info.Size()
		}
		return err
	})
	if err != nil {
		return -1
	}
	return res
}

// ListFiles walks dir and returns every regular file's path relative to dir.
func ListFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.Walk(dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}
